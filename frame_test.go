package apns

import (
	"bytes"
	"testing"
)

const testToken = "abcd1234efab5678abcd1234efab5678abcd1234efab5678abcd1234efab5678"

func TestFrameAddSingleItem(t *testing.T) {
	p, err := NewPayload("hello", nil, "", "", nil, false)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}

	f := NewFrame()
	if err := f.Add(testToken, p, 7, 0, 10); err != nil {
		t.Fatalf("Add: %v", err)
	}

	b := f.Bytes()
	if b[0] != command2 {
		t.Fatalf("expected command byte %d; got %d", command2, b[0])
	}
	frameLen := unpackU32BE(b[1:5])
	if int(frameLen) != len(b)-5 {
		t.Errorf("frame length prefix %d does not match body length %d", frameLen, len(b)-5)
	}

	items := decodeItems(t, b[5:])
	if len(items) != 5 {
		t.Fatalf("expected 5 tagged items; got %d", len(items))
	}

	tok, err := decodeToken(testToken)
	if err != nil {
		t.Fatalf("decodeToken: %v", err)
	}
	if !bytes.Equal(items[tagDeviceToken], tok[:]) {
		t.Error("device token item does not match input token")
	}
	payloadJSON, _ := p.JSON()
	if !bytes.Equal(items[tagPayload], payloadJSON) {
		t.Error("payload item does not match Payload.JSON()")
	}
	if unpackU32BE(items[tagNotificationID]) != 7 {
		t.Errorf("expected identifier 7; got %d", unpackU32BE(items[tagNotificationID]))
	}
	if unpackU8(items[tagPriority]) != 10 {
		t.Errorf("expected priority 10; got %d", unpackU8(items[tagPriority]))
	}
}

func TestFrameAddMultipleItems(t *testing.T) {
	p, _ := NewPayload("hi", nil, "", "", nil, false)

	f := NewFrame()
	for i := uint32(1); i <= 3; i++ {
		if err := f.Add(testToken, p, i, 0, 10); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	if len(f.Items()) != 3 {
		t.Fatalf("expected 3 items; got %d", len(f.Items()))
	}
	for i, n := range f.Items() {
		if n.Identifier != uint32(i+1) {
			t.Errorf("item %d: expected identifier %d; got %d", i, i+1, n.Identifier)
		}
		if len(n.Serialized) == 0 {
			t.Errorf("item %d: expected non-empty serialized bytes", i)
		}
	}

	// Bytes() is the concatenation of every notification's own envelope,
	// one Command 2 frame per item (see frame.go).
	var want []byte
	for _, n := range f.Items() {
		want = append(want, n.Serialized...)
	}
	if !bytes.Equal(f.Bytes(), want) {
		t.Error("Frame.Bytes() is not the concatenation of each item's Serialized bytes")
	}
}

func TestFrameAddInvalidToken(t *testing.T) {
	p, _ := NewPayload("hi", nil, "", "", nil, false)
	f := NewFrame()
	if err := f.Add("not-hex", p, 1, 0, 10); err == nil {
		t.Fatal("expected an error for an invalid token")
	}
}

// decodeItems walks a sequence of tag|u16 length|value items and returns
// them keyed by tag, for test assertions.
func decodeItems(t *testing.T, buf []byte) map[uint8][]byte {
	t.Helper()
	items := make(map[uint8][]byte)
	for len(buf) > 0 {
		tag := buf[0]
		length := unpackU16BE(buf[1:3])
		value := buf[3 : 3+int(length)]
		items[tag] = value
		buf = buf[3+int(length):]
	}
	return items
}
