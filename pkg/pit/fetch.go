package pit

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/xynclient/xyn/pkg/odin"
)

// GetPIT request flags, carried in the first payload word.
const (
	flagRequest uint32 = 0x00
	flagPart    uint32 = 0x02
	flagEnd     uint32 = 0x03
)

// fetchBlockSize is how much table data the bootloader returns per part
// request.
const fetchBlockSize = 4096

// maxTableSize caps how large a declared table we will reassemble. Real
// PITs are a few kilobytes; a device declaring more is broken.
const maxTableSize = 1 << 20

// Fetch pulls the raw PIT blob over an established session and parses
// it. The blob arrives across multiple response frames when it exceeds
// one frame's payload; parts are requested and reassembled in order,
// which is sound because the transport is a single ordered channel.
func Fetch(ctx context.Context, s *odin.Session) (*Catalog, []byte, error) {
	size, err := fetchSize(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	blob := make([]byte, 0, size)
	for index := uint32(0); uint32(len(blob)) < size; index++ {
		part, err := s.Command(ctx, odin.GetPIT, req(flagPart, index))
		if err != nil {
			return nil, nil, fmt.Errorf("table part %d: %w", index, err)
		}
		if len(part) == 0 {
			return nil, nil, fmt.Errorf("%w: empty table part %d", odin.ErrProtocol, index)
		}
		if uint32(len(blob)+len(part)) > size {
			return nil, nil, fmt.Errorf("%w: table part %d overruns declared size %d",
				odin.ErrProtocol, index, size)
		}
		blob = append(blob, part...)
	}

	if resp, err := s.Command(ctx, odin.GetPIT, req(flagEnd, 0)); err != nil {
		return nil, nil, fmt.Errorf("table end: %w", err)
	} else if status := odin.AckStatus(resp); status != 0 {
		return nil, nil, fmt.Errorf("%w: table end status %d", odin.ErrProtocol, status)
	}

	c, err := Parse(blob)
	if err != nil {
		return nil, nil, err
	}
	return c, blob, nil
}

func fetchSize(ctx context.Context, s *odin.Session) (uint32, error) {
	resp, err := s.Command(ctx, odin.GetPIT, req(flagRequest, 0))
	if err != nil {
		return 0, fmt.Errorf("table size request: %w", err)
	}
	if len(resp) < 4 {
		return 0, fmt.Errorf("%w: short table size response", odin.ErrProtocol)
	}
	size := binary.LittleEndian.Uint32(resp)
	if size == 0 || size > maxTableSize {
		return 0, fmt.Errorf("%w: implausible table size %d", odin.ErrProtocol, size)
	}
	return size, nil
}

func req(flag, arg uint32) []byte {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint32(p, flag)
	binary.LittleEndian.PutUint32(p[4:], arg)
	return p
}
