package apns

import (
	"bufio"
	"crypto/tls"
	"net"
	"testing"
	"time"
)

// readFrameIdentifier reads one Command 2 envelope off r and returns the
// identifier carried in its tagNotificationID item. It assumes every
// envelope carries exactly the five items Frame.Add writes.
func readFrameIdentifier(r *bufio.Reader) (uint32, error) {
	header := make([]byte, 5)
	if _, err := readFull(r, header); err != nil {
		return 0, err
	}
	frameLen := unpackU32BE(header[1:5])
	body := make([]byte, frameLen)
	if _, err := readFull(r, body); err != nil {
		return 0, err
	}

	var identifier uint32
	for len(body) > 0 {
		tag := body[0]
		itemLen := unpackU16BE(body[1:3])
		value := body[3 : 3+int(itemLen)]
		if tag == tagNotificationID {
			identifier = unpackU32BE(value)
		}
		body = body[3+int(itemLen):]
	}
	return identifier, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// mockGateway is a hand-rolled stand-in for the legacy binary gateway:
// it speaks just enough of the wire protocol (Command 2 frame in,
// 6-byte error-response frame out) to drive GatewayClient's resend
// path under test.
type mockGateway struct {
	listener net.Listener
}

func startMockGateway(t *testing.T) *mockGateway {
	t.Helper()
	cert := generateSelfSignedCert(t)
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &mockGateway{listener: listener}
}

func (g *mockGateway) addr() string { return g.listener.Addr().String() }
func (g *mockGateway) close()       { g.listener.Close() }

func TestGatewayClientResendAfterError(t *testing.T) {
	gw := startMockGateway(t)
	defer gw.close()

	resent := make(chan uint32, 1)
	serverErr := make(chan error, 1)

	go func() {
		first, err := gw.listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		r := bufio.NewReader(first)

		var ids []uint32
		for i := 0; i < 3; i++ {
			id, err := readFrameIdentifier(r)
			if err != nil {
				serverErr <- err
				first.Close()
				return
			}
			ids = append(ids, id)
		}

		errResp := make([]byte, ErrorResponseLength)
		errResp[0] = errorResponseCommand
		errResp[1] = byte(StatusInvalidToken)
		copy(errResp[2:6], packU32BE(2))
		first.Write(errResp)
		first.Close()

		second, err := gw.listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer second.Close()
		id, err := readFrameIdentifier(bufio.NewReader(second))
		if err != nil {
			serverErr <- err
			return
		}
		resent <- id
	}()

	g := NewGatewayClient(GatewayConfig{
		TLSConfig:   &tls.Config{InsecureSkipVerify: true},
		DialTimeout: 2 * time.Second,
	})
	g.host = gw.addr()
	defer g.Close()

	payload, _ := NewPayload("hi", nil, "", "", nil, false)
	for id := uint32(1); id <= 3; id++ {
		if err := g.SendWithOptions(testToken, payload, id, 0, 10); err != nil {
			t.Fatalf("Send(%d): %v", id, err)
		}
	}

	select {
	case id := <-resent:
		if id != 3 {
			t.Errorf("expected identifier 3 to be resent; got %d", id)
		}
	case err := <-serverErr:
		t.Fatalf("mock gateway failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resend after error-response")
	}
}

func TestGatewayClientResponseListener(t *testing.T) {
	gw := startMockGateway(t)
	defer gw.close()

	go func() {
		conn, err := gw.listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := readFrameIdentifier(bufio.NewReader(conn)); err != nil {
			return
		}
		errResp := make([]byte, ErrorResponseLength)
		errResp[0] = errorResponseCommand
		errResp[1] = byte(StatusMissingPayload)
		copy(errResp[2:6], packU32BE(1))
		conn.Write(errResp)
	}()

	g := NewGatewayClient(GatewayConfig{
		TLSConfig:   &tls.Config{InsecureSkipVerify: true},
		DialTimeout: 2 * time.Second,
	})
	g.host = gw.addr()
	defer g.Close()

	got := make(chan ErrorResponse, 1)
	g.RegisterResponseListener(func(resp ErrorResponse) {
		got <- resp
	})

	payload, _ := NewPayload("hi", nil, "", "", nil, false)
	if err := g.SendWithOptions(testToken, payload, 1, 0, 10); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case resp := <-got:
		if resp.Identifier != 1 {
			t.Errorf("expected identifier 1; got %d", resp.Identifier)
		}
		if resp.Status != StatusMissingPayload {
			t.Errorf("expected status %v; got %v", StatusMissingPayload, resp.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response listener callback")
	}
}

func TestGatewayClientCloseIdempotent(t *testing.T) {
	g := NewGatewayClient(GatewayConfig{TLSConfig: &tls.Config{InsecureSkipVerify: true}})
	if err := g.Close(); err != nil {
		t.Errorf("Close on an unused client: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestGatewayClientCloseStopsReader(t *testing.T) {
	gw := startMockGateway(t)
	defer gw.close()

	go func() {
		conn, err := gw.listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).Discard(1 << 20)
	}()

	g := NewGatewayClient(GatewayConfig{
		TLSConfig:   &tls.Config{InsecureSkipVerify: true},
		DialTimeout: 2 * time.Second,
	})
	g.host = gw.addr()

	payload, _ := NewPayload("hi", nil, "", "", nil, false)
	if err := g.SendWithOptions(testToken, payload, 1, 0, 10); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan struct{})
	go func() {
		g.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return: ErrorReader failed to stop")
	}
}
