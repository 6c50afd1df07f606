package pit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

type entrySpec struct {
	name       string
	identifier uint32
	deviceType uint32
	start      uint32
	count      uint32
	attrs      uint32
}

func buildPIT(t *testing.T, magic uint32, declaredCount int, entries []entrySpec) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	h := header{Magic: magic, Count: uint32(declaredCount)}
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		t.Fatalf("header: %v", err)
	}
	for _, e := range entries {
		var raw rawEntry
		raw.DeviceType = e.deviceType
		raw.Identifier = e.identifier
		raw.Attributes = e.attrs
		raw.StartBlock = e.start
		raw.BlockCount = e.count
		copy(raw.Name[:], e.name)
		if err := binary.Write(buf, binary.LittleEndian, &raw); err != nil {
			t.Fatalf("entry %q: %v", e.name, err)
		}
	}
	return buf.Bytes()
}

func TestParseListOrderAndLookup(t *testing.T) {
	blob := buildPIT(t, magicV1, 2, []entrySpec{
		{name: "BOOT", identifier: 1, start: 0, count: 100, attrs: AttrWritable},
		{name: "USERDATA", identifier: 2, start: 100, count: 5000},
	})
	c, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("got %d entries, want 2", len(list))
	}
	if list[0].Name != "BOOT" || list[1].Name != "USERDATA" {
		t.Errorf("order = %q, %q; want BOOT, USERDATA", list[0].Name, list[1].Name)
	}

	e, err := c.Lookup("BOOT")
	if err != nil {
		t.Fatalf("Lookup(BOOT): %v", err)
	}
	if e.StartBlock != 0 || e.BlockCount != 100 {
		t.Errorf("BOOT = {start:%d count:%d}, want {start:0 count:100}", e.StartBlock, e.BlockCount)
	}
	if !e.Writable() {
		t.Errorf("BOOT should be writable")
	}

	// Lookup is repeatable and returns equal descriptors.
	e2, err := c.Lookup("BOOT")
	if err != nil {
		t.Fatalf("second Lookup(BOOT): %v", err)
	}
	if *e != *e2 {
		t.Errorf("repeated lookups differ: %+v vs %+v", e, e2)
	}
}

func TestLookupCaseSensitiveMiss(t *testing.T) {
	blob := buildPIT(t, magicV1, 1, []entrySpec{
		{name: "BOOT", identifier: 1, count: 10},
	})
	c, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, name := range []string{"boot", "RECOVERY", ""} {
		if _, err := c.Lookup(name); !errors.Is(err, ErrPartitionNotFound) {
			t.Errorf("Lookup(%q) = %v, want ErrPartitionNotFound", name, err)
		}
	}
}

func TestParseUnknownMagic(t *testing.T) {
	blob := buildPIT(t, 0xdeadbeef, 0, nil)
	if _, err := Parse(blob); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestParseCountOverrunsBlob(t *testing.T) {
	// Declares three entries but carries one.
	blob := buildPIT(t, magicV1, 3, []entrySpec{
		{name: "BOOT", identifier: 1, count: 10},
	})
	if _, err := Parse(blob); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	if _, err := Parse([]byte{0x76, 0x98}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestParseDuplicateName(t *testing.T) {
	blob := buildPIT(t, magicV1, 2, []entrySpec{
		{name: "BOOT", identifier: 1, start: 0, count: 10},
		{name: "BOOT", identifier: 2, start: 10, count: 10},
	})
	if _, err := Parse(blob); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestParseOverlap(t *testing.T) {
	blob := buildPIT(t, magicV1, 2, []entrySpec{
		{name: "BOOT", identifier: 1, start: 0, count: 100},
		{name: "RECOVERY", identifier: 2, start: 99, count: 100},
	})
	if _, err := Parse(blob); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestParseSameRangeDifferentDeviceTypes(t *testing.T) {
	// Distinct device types address distinct media; identical block
	// ranges are legitimate there.
	blob := buildPIT(t, magicV1, 2, []entrySpec{
		{name: "BOOT", identifier: 1, deviceType: 2, start: 0, count: 100},
		{name: "OTP", identifier: 2, deviceType: 5, start: 0, count: 100},
	})
	if _, err := Parse(blob); err != nil {
		t.Errorf("Parse = %v, want success", err)
	}
}

func TestParseEmptyName(t *testing.T) {
	blob := buildPIT(t, magicV1, 1, []entrySpec{
		{name: "", identifier: 1, count: 10},
	})
	if _, err := Parse(blob); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Parse = %v, want ErrCorrupt", err)
	}
}

func TestListIsACopy(t *testing.T) {
	blob := buildPIT(t, magicV1, 1, []entrySpec{
		{name: "BOOT", identifier: 1, count: 10},
	})
	c, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	list := c.List()
	list[0].Name = "MANGLED"
	e, err := c.Lookup("BOOT")
	if err != nil || e.Name != "BOOT" {
		t.Errorf("catalog mutated through List(): %v %+v", err, e)
	}
}
