// Package heimdall shells out to the heimdall binary when one is
// installed. Heimdall's flash path has years of field testing behind it,
// so destructive operations prefer it over our native protocol code;
// discovery and reads fall back to the native path when it is absent.
//
// Heimdall produces and consumes the same raw PIT blobs the device does,
// so its output feeds the same pit parser as the native path and callers
// see identical catalog shapes either way.
package heimdall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/golang/glog"
)

// ErrNotFound means no heimdall binary is on PATH.
var ErrNotFound = errors.New("heimdall not found")

// Helper is a located heimdall binary.
type Helper struct {
	path string
}

// Find locates heimdall on PATH.
func Find() (*Helper, error) {
	path, err := exec.LookPath("heimdall")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return &Helper{path: path}, nil
}

// Path is where the binary was found.
func (h *Helper) Path() string {
	return h.path
}

func (h *Helper) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, h.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	glog.V(1).Infof("Running %s %v", h.path, args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("heimdall %s: %w (%s)", args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// Detect asks heimdall whether a download-mode device is present.
func (h *Helper) Detect(ctx context.Context) error {
	return h.run(ctx, "detect")
}

// DownloadPIT fetches the raw PIT blob from the device.
func (h *Helper) DownloadPIT(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "xyn-pit")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "device.pit")
	if err := h.run(ctx, "download-pit", "--output", out, "--no-reboot"); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

// Flash writes file into the named partition.
func (h *Helper) Flash(ctx context.Context, partition, file string) error {
	return h.run(ctx, "flash", "--"+partition, file, "--no-reboot")
}

// Dump reads the named partition into out.
func (h *Helper) Dump(ctx context.Context, partition, out string) error {
	return h.run(ctx, "dump", "--partition", partition, "--output", out, "--no-reboot")
}

// Erase wipes the named partition.
func (h *Helper) Erase(ctx context.Context, partition string) error {
	return h.run(ctx, "erase", "--partition", partition, "--no-reboot")
}

// Reboot asks the device to leave download mode.
func (h *Helper) Reboot(ctx context.Context) error {
	return h.run(ctx, "reboot")
}
