// Package pit parses the Partition Information Table a device in
// download mode hands out: a fixed header followed by fixed-size entry
// records describing every named region of flash.
//
// The layout is device-family specific and versioned by a magic; only
// the layout tagged with magicV1 is understood and anything else is
// rejected instead of guessed at. A catalog is immutable once parsed;
// observing device-side changes means fetching a fresh blob.
package pit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCorrupt means the blob failed structural validation: unknown
	// magic, truncated table, duplicate names, or overlapping ranges.
	ErrCorrupt = errors.New("corrupt partition table")

	// ErrPartitionNotFound is a lookup miss. Matching is exact and
	// case sensitive.
	ErrPartitionNotFound = errors.New("partition not found")
)

// magicV1 tags the only PIT layout revision this package accepts.
const magicV1 = 0x12349876

const (
	headerSize = 28
	entrySize  = 132
	nameLen    = 32
)

type header struct {
	Magic    uint32
	Count    uint32
	Reserved [5]uint32
}

type rawEntry struct {
	BinaryType       uint32
	DeviceType       uint32
	Identifier       uint32
	Attributes       uint32
	UpdateAttributes uint32
	StartBlock       uint32
	BlockCount       uint32
	FileOffset       uint32
	FileSize         uint32
	Name             [nameLen]byte
	FlashFilename    [nameLen]byte
	FotaFilename     [nameLen]byte
}

// Attribute bits on an entry.
const (
	AttrWritable uint32 = 1 << 1
	AttrSTL      uint32 = 1 << 2
)

// Entry is one parsed partition descriptor. Start and Count are in
// device blocks; Identifier is the ID the flash protocol addresses the
// partition by.
type Entry struct {
	Name             string
	Identifier       uint32
	BinaryType       uint32
	DeviceType       uint32
	Attributes       uint32
	UpdateAttributes uint32
	StartBlock       uint32
	BlockCount       uint32
	FileOffset       uint32
	FileSize         uint32
	FlashFilename    string
	FotaFilename     string
}

// Writable reports whether the table marks the partition as flashable.
func (e *Entry) Writable() bool {
	return e.Attributes&AttrWritable != 0
}

// Catalog is the full parsed table for one session, keyed by name.
// Never mutated after Parse returns; a re-fetch builds a new one.
type Catalog struct {
	entries []Entry
	byName  map[string]int
}

// Parse decodes and validates a raw PIT blob.
func Parse(blob []byte) (*Catalog, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(blob))
	}
	r := bytes.NewReader(blob)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Magic != magicV1 {
		return nil, fmt.Errorf("%w: unknown format tag %#08x", ErrCorrupt, h.Magic)
	}
	if need := headerSize + int64(h.Count)*entrySize; need > int64(len(blob)) {
		return nil, fmt.Errorf("%w: %d entries overrun %d-byte blob", ErrCorrupt, h.Count, len(blob))
	}

	c := &Catalog{
		byName: make(map[string]int, h.Count),
	}
	for i := uint32(0); i < h.Count; i++ {
		var raw rawEntry
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
		}
		e := Entry{
			Name:             cstr(raw.Name[:]),
			Identifier:       raw.Identifier,
			BinaryType:       raw.BinaryType,
			DeviceType:       raw.DeviceType,
			Attributes:       raw.Attributes,
			UpdateAttributes: raw.UpdateAttributes,
			StartBlock:       raw.StartBlock,
			BlockCount:       raw.BlockCount,
			FileOffset:       raw.FileOffset,
			FileSize:         raw.FileSize,
			FlashFilename:    cstr(raw.FlashFilename[:]),
			FotaFilename:     cstr(raw.FotaFilename[:]),
		}
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty name", ErrCorrupt, i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate partition name %q", ErrCorrupt, e.Name)
		}
		c.byName[e.Name] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	if err := c.checkOverlaps(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkOverlaps rejects any two entries on the same device type whose
// [start, start+count) block ranges intersect. Different device types
// address different physical media and may legitimately reuse offsets.
func (c *Catalog) checkOverlaps() error {
	byDev := map[uint32][]*Entry{}
	for i := range c.entries {
		e := &c.entries[i]
		if e.BlockCount == 0 {
			continue
		}
		byDev[e.DeviceType] = append(byDev[e.DeviceType], e)
	}
	for _, group := range byDev {
		sort.Slice(group, func(i, j int) bool {
			return group[i].StartBlock < group[j].StartBlock
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			if uint64(prev.StartBlock)+uint64(prev.BlockCount) > uint64(cur.StartBlock) {
				return fmt.Errorf("%w: %q and %q overlap at block %d",
					ErrCorrupt, prev.Name, cur.Name, cur.StartBlock)
			}
		}
	}
	return nil
}

// Lookup resolves a partition by exact, case-sensitive name.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	i, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, name)
	}
	return &c.entries[i], nil
}

// List returns the entries in on-device table order. The slice is a
// copy; the catalog itself stays immutable.
func (c *Catalog) List() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len is the number of entries in the table.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
