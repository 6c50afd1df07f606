package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/ulikunitz/xz"

	"github.com/xynclient/xyn/pkg/odin"
	"github.com/xynclient/xyn/pkg/safety"
	"github.com/xynclient/xyn/pkg/transfer"
)

// ReadPartition dumps the named partition into the file at dest.
func (a *App) ReadPartition(ctx context.Context, name, dest string, opts ...transfer.Option) (int64, error) {
	if _, err := safety.Authorize(safety.OpRead, false); err != nil {
		return 0, err
	}

	cat, err := a.PIT(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := cat.Lookup(name)
	if err != nil {
		return 0, err
	}

	if a.helper != nil {
		if err := a.helper.Dump(ctx, name, dest); err != nil {
			return 0, err
		}
		fi, err := os.Stat(dest)
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	}

	s, err := a.Session(ctx)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("could not open file for writing: %w", err)
	}
	defer f.Close()

	n, err := transfer.Read(ctx, s, entry, f, opts...)
	if err != nil {
		return n, err
	}
	return n, nil
}

// WritePartition flashes the file at src into the named partition.
// Destructive: refused before any device I/O unless confirmed is set.
// Files ending in .xz are decompressed transparently first.
func (a *App) WritePartition(ctx context.Context, name, src string, confirmed bool, opts ...transfer.Option) (int64, error) {
	ticket, err := safety.Authorize(safety.OpWrite, confirmed)
	if err != nil {
		return 0, err
	}

	path, size, cleanup, err := materialize(src)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	if a.helper != nil {
		if err := a.helper.Flash(ctx, name, path); err != nil {
			return 0, err
		}
		return size, nil
	}

	cat, err := a.PIT(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := cat.Lookup(name)
	if err != nil {
		return 0, err
	}
	s, err := a.Session(ctx)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not open image: %w", err)
	}
	defer f.Close()

	return transfer.Write(ctx, s, entry, f, size, ticket, opts...)
}

// ErasePartition wipes the named partition. Destructive: refused before
// any device I/O unless confirmed is set.
func (a *App) ErasePartition(ctx context.Context, name string, confirmed bool, opts ...transfer.Option) error {
	ticket, err := safety.Authorize(safety.OpErase, confirmed)
	if err != nil {
		return err
	}

	if a.helper != nil {
		return a.helper.Erase(ctx, name)
	}

	cat, err := a.PIT(ctx)
	if err != nil {
		return err
	}
	entry, err := cat.Lookup(name)
	if err != nil {
		return err
	}
	s, err := a.Session(ctx)
	if err != nil {
		return err
	}
	return transfer.Erase(ctx, s, entry, ticket, opts...)
}

// Reboot asks the device to leave download mode.
func (a *App) Reboot(ctx context.Context) error {
	if a.helper != nil {
		return a.helper.Reboot(ctx)
	}
	s, err := a.Session(ctx)
	if err != nil {
		return err
	}
	_, err = s.Command(ctx, odin.Reboot, nil)
	return err
}

// materialize resolves src into a plain file ready to flash, unpacking
// xz-compressed images into a temporary file. Returns the usable path,
// its size and a cleanup func.
func materialize(src string) (string, int64, func(), error) {
	nop := func() {}
	if !strings.HasSuffix(src, ".xz") {
		fi, err := os.Stat(src)
		if err != nil {
			return "", 0, nop, fmt.Errorf("could not stat image: %w", err)
		}
		return src, fi.Size(), nop, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", 0, nop, fmt.Errorf("could not open image: %w", err)
	}
	defer in.Close()
	xr, err := xz.NewReader(in)
	if err != nil {
		return "", 0, nop, fmt.Errorf("not a valid xz stream: %w", err)
	}

	tmp, err := os.CreateTemp("", "xyn-"+filepath.Base(strings.TrimSuffix(src, ".xz")))
	if err != nil {
		return "", 0, nop, err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	n, err := io.Copy(tmp, xr)
	if err != nil {
		cleanup()
		return "", 0, nop, fmt.Errorf("decompress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", 0, nop, err
	}
	glog.V(1).Infof("Decompressed %s to %d bytes", src, n)
	return tmp.Name(), n, func() { os.Remove(tmp.Name()) }, nil
}
