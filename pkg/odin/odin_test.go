package odin

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

// fakeTransport replays a scripted sequence of receive buffers and
// records everything sent.
type fakeTransport struct {
	sent    [][]byte
	replies [][]byte
	closed  bool
}

func (f *fakeTransport) Send(_ context.Context, buf []byte) (int, error) {
	f.sent = append(f.sent, append([]byte(nil), buf...))
	return len(buf), nil
}

func (f *fakeTransport) Receive(_ context.Context, buf []byte) (int, error) {
	if len(f.replies) == 0 {
		return 0, errors.New("unexpected receive")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if len(r) > len(buf) {
		return 0, errors.New("test reply larger than read buffer")
	}
	return copy(buf, r), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// frame returns a response frame split the way Receive consumes it:
// header first, then payload.
func frame(op Opcode, payload []byte) [][]byte {
	header := make([]byte, headerLen)
	header[0] = byte(op)
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if len(payload) == 0 {
		return [][]byte{header}
	}
	return [][]byte{header, payload}
}

func ack(op Opcode, status uint32) [][]byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, status)
	return frame(op, p)
}

func handshakeReplies() [][]byte {
	replies := [][]byte{[]byte("LOKE")}
	return append(replies, ack(SessionStart, 0)...)
}

func TestBegin(t *testing.T) {
	ft := &fakeTransport{replies: handshakeReplies()}
	s := New(ft)
	if got := s.State(); got != Connected {
		t.Fatalf("state = %s, want connected", got)
	}
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := s.State(); got != Handshaked {
		t.Errorf("state = %s, want handshaked", got)
	}
	if !bytes.Equal(ft.sent[0], []byte("ODIN")) {
		t.Errorf("first send = %q, want ODIN magic", ft.sent[0])
	}
}

func TestBeginBadMagic(t *testing.T) {
	ft := &fakeTransport{replies: [][]byte{[]byte("HELO")}}
	s := New(ft)
	err := s.Begin(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Begin = %v, want ErrProtocol", err)
	}
	if got := s.State(); got != Disconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

func TestBeginRejectedSessionStart(t *testing.T) {
	replies := [][]byte{[]byte("LOKE")}
	replies = append(replies, ack(SessionStart, 1)...)
	ft := &fakeTransport{replies: replies}
	s := New(ft)
	if err := s.Begin(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Fatalf("Begin = %v, want ErrProtocol", err)
	}
	if got := s.State(); got != Disconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

func TestCommandFraming(t *testing.T) {
	replies := handshakeReplies()
	replies = append(replies, frame(GetPIT, []byte{0xaa, 0xbb, 0xcc})...)
	ft := &fakeTransport{replies: replies}
	s := New(ft)
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	resp, err := s.Command(context.Background(), GetPIT, []byte{1, 2})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !bytes.Equal(resp, []byte{0xaa, 0xbb, 0xcc}) {
		t.Errorf("resp = %x", resp)
	}

	sent := ft.sent[len(ft.sent)-1]
	want := []byte{byte(GetPIT), 2, 0, 0, 0, 1, 2}
	if !bytes.Equal(sent, want) {
		t.Errorf("sent frame = %x, want %x", sent, want)
	}
}

func TestCommandResponseAcrossReads(t *testing.T) {
	// The device is free to deliver a frame in arbitrary bulk pieces.
	payload := bytes.Repeat([]byte{0x5a}, 10)
	header := make([]byte, headerLen)
	header[0] = byte(FileTransfer)
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))

	replies := handshakeReplies()
	replies = append(replies, header[:2], header[2:], payload[:3], payload[3:])
	ft := &fakeTransport{replies: replies}
	s := New(ft)
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	resp, err := s.Command(context.Background(), FileTransfer, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !bytes.Equal(resp, payload) {
		t.Errorf("resp = %x, want %x", resp, payload)
	}
}

func TestCommandBeforeHandshake(t *testing.T) {
	s := New(&fakeTransport{})
	if _, err := s.Command(context.Background(), GetPIT, nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("Command = %v, want ErrProtocol", err)
	}
}

func TestCommandFailureClosesSession(t *testing.T) {
	ft := &fakeTransport{replies: handshakeReplies()}
	s := New(ft)
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// No reply scripted: the command's receive fails.
	if _, err := s.Command(context.Background(), GetPIT, nil); err == nil {
		t.Fatal("Command succeeded with no reply scripted")
	}
	if got := s.State(); got != Closed {
		t.Errorf("state = %s, want closed", got)
	}
	if !ft.closed {
		t.Errorf("transport not closed after command failure")
	}
	// Single use: a closed session never comes back.
	if _, err := s.Command(context.Background(), GetPIT, nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("Command on closed session = %v, want ErrProtocol", err)
	}
}

func TestEndBestEffort(t *testing.T) {
	replies := handshakeReplies()
	replies = append(replies, ack(SessionEnd, 0)...)
	ft := &fakeTransport{replies: replies}
	s := New(ft)
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	s.End(context.Background())
	if got := s.State(); got != Closed {
		t.Errorf("state = %s, want closed", got)
	}
	if !ft.closed {
		t.Errorf("transport not closed")
	}

	// End with a failing terminate send still closes.
	ft2 := &fakeTransport{replies: handshakeReplies()}
	s2 := New(ft2)
	if err := s2.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	s2.End(context.Background())
	if got := s2.State(); got != Closed || !ft2.closed {
		t.Errorf("state = %s closed=%v, want closed/true", got, ft2.closed)
	}
}
