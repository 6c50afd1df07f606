// Package odin speaks the request/response protocol of the Exynos
// download-mode bootloader ("ODIN mode"). The protocol is a fixed vendor
// design with no version negotiation, so everything here is strict: a
// mismatched magic or a short frame kills the session rather than being
// papered over.
package odin

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/xynclient/xyn/pkg/devices"
)

// ErrProtocol covers handshake and framing violations. A session that
// returned it is desynchronized and must be torn down; there is no
// recovery short of a fresh session.
var ErrProtocol = errors.New("download-mode protocol violation")

type Opcode uint8

const (
	SessionStart   Opcode = 0x65
	SessionEnd     Opcode = 0x66
	FileTransfer   Opcode = 0x67
	FileComplete   Opcode = 0x68
	GetPIT         Opcode = 0x69
	PartitionInfo  Opcode = 0x70
	ErasePartition Opcode = 0x71
	Reboot         Opcode = 0x72
)

// Magics exchanged before any framed traffic.
var (
	handshakeMagic = []byte("ODIN")
	handshakeAck   = []byte("LOKE")
)

// ProtocolVersion is carried in the SessionStart payload.
const ProtocolVersion = 3

// headerLen is opcode (1) + payload length (4, little endian).
const headerLen = 5

// maxPayload bounds a single frame. Anything larger is split by the
// caller; a peer declaring more than this is lying.
const maxPayload = 1 << 20

type State int

const (
	Disconnected State = iota
	Connected
	Handshaked
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Handshaked:
		return "handshaked"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session owns one Transport for its whole life. Exactly one command is
// in flight at a time; the device has a single logical command channel
// and interleaving would desynchronize it. A Session is single use: once
// Closed it never goes back.
type Session struct {
	mu    sync.Mutex
	t     devices.Transport
	state State
}

// New wraps an open transport. The session starts Connected; Begin moves
// it to Handshaked.
func New(t devices.Transport) *Session {
	return &Session{t: t, state: Connected}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin performs the magic handshake followed by a framed SessionStart.
// On any mismatch the session drops to Disconnected; a corrupted
// handshake is not self-correcting, so there are no retries here.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return fmt.Errorf("%w: begin in state %s", ErrProtocol, s.state)
	}

	if _, err := s.t.Send(ctx, handshakeMagic); err != nil {
		s.state = Disconnected
		return fmt.Errorf("handshake send: %w", err)
	}
	buf := make([]byte, 16)
	n, err := s.t.Receive(ctx, buf)
	if err != nil {
		s.state = Disconnected
		return fmt.Errorf("handshake receive: %w", err)
	}
	if n < len(handshakeAck) || !bytes.Equal(buf[:len(handshakeAck)], handshakeAck) {
		s.state = Disconnected
		return fmt.Errorf("%w: handshake response %x", ErrProtocol, buf[:n])
	}

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, ProtocolVersion)
	resp, err := s.command(ctx, SessionStart, payload)
	if err != nil {
		s.state = Disconnected
		return fmt.Errorf("session start: %w", err)
	}
	if status := AckStatus(resp); status != 0 {
		s.state = Disconnected
		return fmt.Errorf("%w: session start status %d", ErrProtocol, status)
	}

	s.state = Handshaked
	return nil
}

// Command frames op+payload, sends it, and blocks for the framed
// response. Callers serialize on the session lock, honoring the one
// in-flight command rule.
func (s *Session) Command(ctx context.Context, op Opcode, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Handshaked {
		return nil, fmt.Errorf("%w: command in state %s", ErrProtocol, s.state)
	}
	resp, err := s.command(ctx, op, payload)
	if err != nil {
		// The request/response pairing is gone; nothing sent after
		// this point can be trusted to line up.
		s.state = Closed
		s.t.Close()
		return nil, err
	}
	return resp, nil
}

func (s *Session) command(ctx context.Context, op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("%w: payload %d exceeds frame limit", ErrProtocol, len(payload))
	}

	frame := make([]byte, headerLen+len(payload))
	frame[0] = byte(op)
	binary.LittleEndian.PutUint32(frame[1:headerLen], uint32(len(payload)))
	copy(frame[headerLen:], payload)
	if _, err := s.t.Send(ctx, frame); err != nil {
		return nil, fmt.Errorf("send %#02x: %w", byte(op), err)
	}

	header := make([]byte, headerLen)
	if err := s.receiveFull(ctx, header); err != nil {
		return nil, fmt.Errorf("receive header: %w", err)
	}
	length := binary.LittleEndian.Uint32(header[1:])
	if length > maxPayload {
		return nil, fmt.Errorf("%w: response declares %d bytes", ErrProtocol, length)
	}
	resp := make([]byte, length)
	if err := s.receiveFull(ctx, resp); err != nil {
		return nil, fmt.Errorf("receive payload: %w", err)
	}
	return resp, nil
}

// receiveFull reads until buf is full. USB delivers bulk data in
// endpoint-sized pieces, so a frame can straddle several reads.
func (s *Session) receiveFull(ctx context.Context, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := s.t.Receive(ctx, buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: empty bulk read", ErrProtocol)
		}
		off += n
	}
	return nil
}

// End sends SessionEnd best-effort, then closes the transport. Failures
// sending the terminate are logged, not surfaced: the session is going
// away regardless of whether the device heard us.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Handshaked {
		if _, err := s.command(ctx, SessionEnd, nil); err != nil {
			glog.Warningf("Session end failed (ignored): %v", err)
		}
	}
	s.state = Closed
	s.t.Close()
}

// AckStatus decodes the conventional 4-byte little-endian status payload
// the bootloader acknowledges commands with. Anything malformed counts
// as a failure.
func AckStatus(resp []byte) int32 {
	if len(resp) < 4 {
		return -1
	}
	return int32(binary.LittleEndian.Uint32(resp))
}
