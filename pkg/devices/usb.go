package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

var (
	// ErrNotFound means no device in download mode was seen on the bus.
	ErrNotFound = errors.New("no device in download mode found")

	// ErrBusy means the download-mode interface is claimed by something
	// else (usually a kernel driver that refused to detach).
	ErrBusy = errors.New("download-mode interface busy")

	// ErrTimeout is a bulk transfer deadline expiring. The session that
	// hit it must be torn down; the command stream is no longer in a
	// known state.
	ErrTimeout = errors.New("USB transfer timeout")
)

// Transport describes a claimed bulk pipe to a device in download mode.
// It moves raw bytes and nothing else: no framing, no retries. Errors
// come back as-is, wrapped with ErrTimeout where a deadline expired.
type Transport interface {
	// Send writes buf to the bulk OUT endpoint, returning the number of
	// bytes accepted by the device.
	Send(ctx context.Context, buf []byte) (int, error)

	// Receive reads up to len(buf) bytes from the bulk IN endpoint.
	Receive(ctx context.Context, buf []byte) (int, error)

	// Close releases the claimed interface. Idempotent.
	Close() error
}

// UsbTransport is the gousb-backed Transport. Construct with Open.
type UsbTransport struct {
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	timeout time.Duration
	done    func()
	closed  bool
}

// Open claims the first interface of dev exposing a bulk IN/OUT endpoint
// pair and returns a Transport over it. The per-transfer timeout applies
// whenever the caller's context carries no earlier deadline.
func Open(dev *gousb.Device, timeout time.Duration) (*UsbTransport, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("autodetach: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	var in *gousb.InEndpoint
	var out *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if in == nil {
				in, err = intf.InEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionOut:
			if out == nil {
				out, err = intf.OutEndpoint(ep.Number)
			}
		}
		if err != nil {
			done()
			return nil, fmt.Errorf("endpoint %d: %w", ep.Number, err)
		}
	}
	if in == nil || out == nil {
		done()
		return nil, fmt.Errorf("no bulk IN/OUT endpoint pair on default interface")
	}

	return &UsbTransport{
		in:      in,
		out:     out,
		timeout: timeout,
		done:    done,
	}, nil
}

func (t *UsbTransport) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *UsbTransport) Send(ctx context.Context, buf []byte) (int, error) {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()
	n, err := t.out.WriteContext(ctx, buf)
	return n, mapErr(err)
}

func (t *UsbTransport) Receive(ctx context.Context, buf []byte) (int, error) {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()
	n, err := t.in.ReadContext(ctx, buf)
	return n, mapErr(err)
}

func (t *UsbTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.done != nil {
		t.done()
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.TransferTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
