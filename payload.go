package apns

import (
	"bytes"
	"encoding/json"
)

// StructuredAlert is the localized-alert form of Payload.Alert. Apple
// recommends a plain string alert unless you specifically need
// localization; this exists for that case.
//
// A StructuredAlert with no fields set still serializes to an empty
// JSON object, which is how you pair a silent alert with
// ContentAvailable to wake the app without showing anything visible.
type StructuredAlert struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	TitleLocKey  string   `json:"title-loc-key,omitempty"`
	TitleLocArgs []string `json:"title-loc-args,omitempty"`
	ActionLocKey string   `json:"action-loc-key,omitempty"`
	LocKey       string   `json:"loc-key,omitempty"`
	LocArgs      []string `json:"loc-args,omitempty"`
	LaunchImage  string   `json:"launch-image,omitempty"`
}

// Payload is the body delivered to a device. Alert may be either a
// plain string or a *StructuredAlert; any other type is a caller error.
type Payload struct {
	Alert            interface{}
	Badge            *int
	Sound            string
	Category         string
	ContentAvailable bool
	Custom           map[string]interface{}
}

// NewPayload validates and returns a Payload, or a *PayloadTooLargeError
// if its JSON encoding exceeds MaxPayloadLength. Validation is performed
// by doing the real trial serialization immediately, so the caller never
// holds a Payload that can't be sent.
func NewPayload(alert interface{}, badge *int, sound, category string, custom map[string]interface{}, contentAvailable bool) (*Payload, error) {
	if _, reserved := custom["aps"]; reserved {
		return nil, &ReservedCustomKeyError{Key: "aps"}
	}
	p := &Payload{
		Alert:            alert,
		Badge:            badge,
		Sound:            sound,
		Category:         category,
		ContentAvailable: contentAvailable,
		Custom:           custom,
	}
	if _, err := p.JSON(); err != nil {
		return nil, err
	}
	return p, nil
}

// aps is the reserved "aps" sub-object. It carries exactly the fields
// the caller set and no others: every field is omitempty, and Badge is a
// pointer, so a badge of 0 (a non-nil pointer) survives while an unset
// badge (nil) is omitted.
type aps struct {
	Alert            interface{} `json:"alert,omitempty"`
	Badge            *int        `json:"badge,omitempty"`
	Sound            string      `json:"sound,omitempty"`
	Category         string      `json:"category,omitempty"`
	ContentAvailable int         `json:"content-available,omitempty"`
}

// dict builds the top-level JSON-able map: {"aps": {...}, <custom...>}.
// NewPayload already rejects a custom "aps" key, so the assignment
// order below never has to resolve a collision.
func (p *Payload) dict() map[string]interface{} {
	a := aps{
		Alert:    p.Alert,
		Badge:    p.Badge,
		Sound:    p.Sound,
		Category: p.Category,
	}
	if p.ContentAvailable {
		a.ContentAvailable = 1
	}

	d := make(map[string]interface{}, len(p.Custom)+1)
	for k, v := range p.Custom {
		d[k] = v
	}
	d["aps"] = a
	return d
}

// JSON returns the compact, non-ASCII-preserving UTF-8 encoding of the
// payload. APNs does not require top-level key order to be stable, and
// this encoder does not promise one either.
func (p *Payload) JSON() ([]byte, error) {
	d := p.dict()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	// json.Encoder.Encode always appends a trailing newline.
	b := bytes.TrimRight(buf.Bytes(), "\n")

	if len(b) > MaxPayloadLength {
		return nil, &PayloadTooLargeError{PayloadSize: len(b)}
	}
	return b, nil
}
