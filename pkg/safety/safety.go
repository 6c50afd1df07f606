// Package safety is the single chokepoint in front of destructive flash
// operations. Writing the wrong partition can permanently disable a
// device, so write and erase are unreachable without a Ticket, and the
// only way to mint a Ticket is Authorize — before any device I/O.
package safety

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized means a destructive operation was requested without
// explicit confirmation. No bytes have touched the device when this is
// returned.
var ErrNotAuthorized = errors.New("destructive operation not confirmed")

type Operation int

const (
	OpDetect Operation = iota
	OpList
	OpRead
	OpWrite
	OpErase
	OpReboot
)

func (o Operation) String() string {
	switch o {
	case OpDetect:
		return "detect"
	case OpList:
		return "list"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	case OpReboot:
		return "reboot"
	}
	return "unknown"
}

type Class int

const (
	Safe Class = iota
	Destructive
)

// Classify maps an operation to its risk class. Reads and listings never
// modify flash; writes and erases always might.
func Classify(op Operation) Class {
	switch op {
	case OpWrite, OpErase:
		return Destructive
	default:
		return Safe
	}
}

// Ticket proves an operation passed through Authorize. The zero Ticket
// grants nothing; the op field being unexported means no other package
// can forge one.
type Ticket struct {
	op      Operation
	granted bool
}

// Grants reports whether the ticket authorizes op.
func (t Ticket) Grants(op Operation) bool {
	return t.granted && t.op == op
}

// Authorize checks confirmation for destructive operations and mints the
// ticket the transfer layer demands. Safe operations always pass.
func Authorize(op Operation, confirmed bool) (Ticket, error) {
	if Classify(op) == Destructive && !confirmed {
		return Ticket{}, fmt.Errorf("%w: %s", ErrNotAuthorized, op)
	}
	return Ticket{op: op, granted: true}, nil
}
