package apns

import "encoding/hex"

// APNs Command 2 item tags.
const (
	tagDeviceToken    uint8 = 1
	tagPayload        uint8 = 2
	tagNotificationID uint8 = 3
	tagExpirationDate uint8 = 4
	tagPriority       uint8 = 5
	command2          uint8 = 2
)

// Notification is one push message as tracked by a Frame and by a
// GatewayClient's send history.
type Notification struct {
	Token      [TokenLength]byte
	Payload    *Payload
	Identifier uint32
	Expiry     uint32
	Priority   uint8
	Serialized []byte
}

// Frame is an ordered sequence of notifications and the concatenated
// Command 2 bytes built for them.
//
// Each call to Add back-patches a 4-byte length prefix over the five
// tagged items it just wrote, so the accumulated buffer is one Command 2
// envelope per notification rather than a single envelope spanning all
// of them. Whether that was the intended wire format or an artifact of
// how per-item framing was originally written is open to debate; this
// preserves the behavior rather than guessing at a "fixed" version.
type Frame struct {
	buf   []byte
	items []Notification
}

// NewFrame returns an empty Frame.
func NewFrame() *Frame {
	return &Frame{}
}

// Add decodes tokenHex, serializes one Command 2 envelope for it, and
// appends both the bytes and a Notification record to the frame.
func (f *Frame) Add(tokenHex string, payload *Payload, identifier, expiry uint32, priority uint8) error {
	token, err := decodeToken(tokenHex)
	if err != nil {
		return err
	}

	payloadJSON, err := payload.JSON()
	if err != nil {
		return err
	}

	itemStart := len(f.buf)
	f.buf = append(f.buf, command2)
	lengthPos := len(f.buf)
	f.buf = append(f.buf, packU32BE(0)...) // placeholder, back-patched below

	f.buf = appendItem(f.buf, tagDeviceToken, token[:])
	f.buf = appendItem(f.buf, tagPayload, payloadJSON)
	f.buf = appendItem(f.buf, tagNotificationID, packU32BE(identifier))
	f.buf = appendItem(f.buf, tagExpirationDate, packU32BE(expiry))
	f.buf = appendItem(f.buf, tagPriority, packU8(priority))

	itemLen := len(f.buf) - lengthPos - 4
	copy(f.buf[lengthPos:lengthPos+4], packU32BE(uint32(itemLen)))

	serialized := make([]byte, len(f.buf)-itemStart)
	copy(serialized, f.buf[itemStart:])

	f.items = append(f.items, Notification{
		Token:      token,
		Payload:    payload,
		Identifier: identifier,
		Expiry:     expiry,
		Priority:   priority,
		Serialized: serialized,
	})

	return nil
}

// Bytes returns the accumulated Command 2 buffer, ready to write.
func (f *Frame) Bytes() []byte {
	return f.buf
}

// Items returns the notification records added so far, in order.
func (f *Frame) Items() []Notification {
	return f.items
}

func appendItem(buf []byte, tag uint8, value []byte) []byte {
	buf = append(buf, tag)
	buf = append(buf, packU16BE(uint16(len(value)))...)
	buf = append(buf, value...)
	return buf
}

func decodeToken(tokenHex string) ([TokenLength]byte, error) {
	var token [TokenLength]byte
	raw, err := hex.DecodeString(tokenHex)
	if err != nil || len(raw) != TokenLength {
		return token, &InvalidTokenError{Token: tokenHex}
	}
	copy(token[:], raw)
	return token, nil
}
