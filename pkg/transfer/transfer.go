// Package transfer moves partition contents over an established
// download-mode session in bounded, individually acknowledged chunks.
// Destructive entry points demand a safety.Ticket; there is no way to
// reach the device's write or erase commands around that check.
package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/xynclient/xyn/pkg/odin"
	"github.com/xynclient/xyn/pkg/pit"
	"github.com/xynclient/xyn/pkg/safety"
)

// ErrSizeMismatch means a write source is larger than the target
// partition. Raised before the first command is sent; the device never
// sees an oversized transfer.
var ErrSizeMismatch = errors.New("image larger than partition")

// DefaultChunkSize is the per-command payload for partition data.
const DefaultChunkSize = 128 * 1024

// BlockSize is the logical flash block size partition extents are
// declared in.
const BlockSize = 512

// Sub-flags for FileTransfer request payloads.
const (
	fileStart uint32 = 0x00
	filePart  uint32 = 0x02
)

// WithBlockSize overrides the logical block size used to convert a
// descriptor's block count into bytes.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockSizeOverride = n
		}
	}
}

func capacity(e *pit.Entry, c *config) uint64 {
	bs := uint64(BlockSize)
	if c.blockSizeOverride > 0 {
		bs = uint64(c.blockSizeOverride)
	}
	return uint64(e.BlockCount) * bs
}

// Read streams the partition described by e into sink. The expected
// length is derived from the descriptor; the device must deliver exactly
// that many bytes. A zero-length chunk or one that would overrun the
// declared size fails with a protocol error — never silent truncation,
// never an over-read.
func Read(ctx context.Context, s *odin.Session, e *pit.Entry, sink io.Writer, opts ...Option) (int64, error) {
	cfg := buildConfig(opts)
	total := capacity(e, &cfg)

	start := make([]byte, 16)
	binary.LittleEndian.PutUint32(start, fileStart)
	binary.LittleEndian.PutUint32(start[4:], e.Identifier)
	binary.LittleEndian.PutUint32(start[8:], e.StartBlock)
	binary.LittleEndian.PutUint32(start[12:], e.BlockCount)
	resp, err := s.Command(ctx, odin.FileTransfer, start)
	if err != nil {
		return 0, fmt.Errorf("read start: %w", err)
	}
	if status := odin.AckStatus(resp); status != 0 {
		return 0, fmt.Errorf("%w: read start status %d", odin.ErrProtocol, status)
	}

	var done uint64
	for index := uint32(0); done < total; index++ {
		if err := ctx.Err(); err != nil {
			return int64(done), fmt.Errorf("read cancelled after %d bytes: %w", done, err)
		}
		part := make([]byte, 8)
		binary.LittleEndian.PutUint32(part, filePart)
		binary.LittleEndian.PutUint32(part[4:], index)
		chunk, err := s.Command(ctx, odin.FileTransfer, part)
		if err != nil {
			return int64(done), fmt.Errorf("read chunk %d: %w", index, err)
		}
		if len(chunk) == 0 {
			return int64(done), fmt.Errorf("%w: zero-length chunk %d", odin.ErrProtocol, index)
		}
		if done+uint64(len(chunk)) > total {
			return int64(done), fmt.Errorf("%w: chunk %d overruns declared size %d",
				odin.ErrProtocol, index, total)
		}
		if _, err := sink.Write(chunk); err != nil {
			return int64(done), fmt.Errorf("sink: %w", err)
		}
		done += uint64(len(chunk))
		cfg.report(done, total)
	}

	resp, err = s.Command(ctx, odin.FileComplete, nil)
	if err != nil {
		return int64(done), fmt.Errorf("read complete: %w", err)
	}
	if status := odin.AckStatus(resp); status != 0 {
		return int64(done), fmt.Errorf("%w: read complete status %d", odin.ErrProtocol, status)
	}
	return int64(done), nil
}

// Write streams srcLen bytes from src into the partition described by e.
// The transfer is flow controlled: every chunk waits for the device's
// acknowledgment before the next is sent, and a missing or negative
// acknowledgment aborts the rest. On a mid-transfer failure the returned
// count is exactly how many bytes the device acknowledged — the caller
// decides what to do with the partially written partition, there is no
// automatic rollback because flash has none.
func Write(ctx context.Context, s *odin.Session, e *pit.Entry, src io.Reader, srcLen int64, tk safety.Ticket, opts ...Option) (int64, error) {
	if !tk.Grants(safety.OpWrite) {
		return 0, fmt.Errorf("%w: write to %q", safety.ErrNotAuthorized, e.Name)
	}
	cfg := buildConfig(opts)
	if srcLen < 0 {
		return 0, fmt.Errorf("%w: negative source length", ErrSizeMismatch)
	}
	if uint64(srcLen) > capacity(e, &cfg) {
		return 0, fmt.Errorf("%w: %d bytes into %d-byte partition %q",
			ErrSizeMismatch, srcLen, capacity(e, &cfg), e.Name)
	}
	// The start frame carries the size as 32 bits; a larger source
	// would be silently truncated on the wire and desync the device.
	if srcLen > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes exceeds the protocol's 32-bit size field",
			ErrSizeMismatch, srcLen)
	}

	start := make([]byte, 8)
	binary.LittleEndian.PutUint32(start, e.Identifier)
	binary.LittleEndian.PutUint32(start[4:], uint32(srcLen))
	resp, err := s.Command(ctx, odin.PartitionInfo, start)
	if err != nil {
		return 0, fmt.Errorf("write start: %w", err)
	}
	if status := odin.AckStatus(resp); status != 0 {
		return 0, fmt.Errorf("%w: write start status %d", odin.ErrProtocol, status)
	}

	var written int64
	buf := make([]byte, cfg.chunkSize)
	for written < srcLen {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("write cancelled after %d bytes: %w", written, err)
		}
		want := int64(len(buf))
		if rem := srcLen - written; rem < want {
			want = rem
		}
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			return written, fmt.Errorf("source after %d bytes: %w", written, err)
		}
		resp, err := s.Command(ctx, odin.FileTransfer, buf[:n])
		if err != nil {
			return written, fmt.Errorf("write chunk after %d bytes: %w", written, err)
		}
		if status := odin.AckStatus(resp); status != 0 {
			return written, fmt.Errorf("%w: chunk rejected with status %d after %d bytes",
				odin.ErrProtocol, status, written)
		}
		written += int64(n)
		cfg.report(uint64(written), uint64(srcLen))
	}

	resp, err = s.Command(ctx, odin.FileComplete, nil)
	if err != nil {
		return written, fmt.Errorf("write complete: %w", err)
	}
	if status := odin.AckStatus(resp); status != 0 {
		return written, fmt.Errorf("%w: write complete status %d", odin.ErrProtocol, status)
	}
	return written, nil
}

// Erase wipes the partition described by e. The single most destructive
// thing this tool can do; unreachable without an erase ticket. The
// device erases the whole range in one command, so the progress stream
// is a single terminal event covering the full extent.
func Erase(ctx context.Context, s *odin.Session, e *pit.Entry, tk safety.Ticket, opts ...Option) error {
	if !tk.Grants(safety.OpErase) {
		return fmt.Errorf("%w: erase of %q", safety.ErrNotAuthorized, e.Name)
	}
	cfg := buildConfig(opts)

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, e.Identifier)
	resp, err := s.Command(ctx, odin.ErasePartition, payload)
	if err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if status := odin.AckStatus(resp); status != 0 {
		return fmt.Errorf("%w: erase status %d", odin.ErrProtocol, status)
	}
	total := capacity(e, &cfg)
	cfg.report(total, total)
	return nil
}
