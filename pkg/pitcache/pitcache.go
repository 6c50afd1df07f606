// Package pitcache keeps the last PIT blob fetched from each device
// product under the XDG state directory, so partition layouts can be
// inspected without re-opening a session. A fresh fetch always replaces
// the cached blob wholesale.
package pitcache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/golang/glog"
	"github.com/google/gousb"
)

func pathFor(pid gousb.ID) (string, error) {
	return xdg.StateFile(filepath.Join("xyn", "pit", fmt.Sprintf("%04x.pit", uint16(pid))))
}

// Store saves blob as the cached table for the given product ID.
func Store(pid gousb.ID, blob []byte) error {
	p, err := pathFor(pid)
	if err != nil {
		return fmt.Errorf("cache path: %w", err)
	}
	if err := os.WriteFile(p, blob, 0644); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	glog.V(1).Infof("Cached PIT for %04x at %s (%d bytes)", uint16(pid), p, len(blob))
	return nil
}

// Load returns the cached blob for the given product ID, or an error if
// none was ever stored.
func Load(pid gousb.ID) ([]byte, error) {
	p, err := xdg.SearchStateFile(filepath.Join("xyn", "pit", fmt.Sprintf("%04x.pit", uint16(pid))))
	if err != nil {
		return nil, fmt.Errorf("no cached PIT for %04x: %w", uint16(pid), err)
	}
	return os.ReadFile(p)
}
