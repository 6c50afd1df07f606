// Package app ties the engine together: it owns the USB context, finds
// a device in download mode, brings up the protocol session lazily, and
// picks between the native protocol and a vetted external helper for
// each operation. The CLI talks to this package and nothing below it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/hashicorp/go-multierror"

	"github.com/xynclient/xyn/pkg/devices"
	"github.com/xynclient/xyn/pkg/heimdall"
	"github.com/xynclient/xyn/pkg/odin"
	"github.com/xynclient/xyn/pkg/pit"
	"github.com/xynclient/xyn/pkg/pitcache"
)

// DefaultTimeout bounds individual bulk transfers. Erase and flash
// commands on the device side can be slow; this is deliberately long.
const DefaultTimeout = 30 * time.Second

type App struct {
	ctx  *gousb.Context
	usb  *gousb.Device
	Desc *devices.Description

	helper *heimdall.Helper

	sess    *odin.Session
	catalog *pit.Catalog
	rawPIT  []byte

	Timeout time.Duration
}

// newContext guards against gousb panicking when libusb is unusable,
// which it does on hosts with no USB stack at all.
func newContext() (*gousb.Context, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()

		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, err
	case res := <-resC:
		return res, nil
	}
}

// New locates a device in download mode and prepares an App around it.
// The protocol session itself is only established when an operation
// needs the native path, so helper-delegated operations never contend
// with the helper for the claimed interface.
func New() (*App, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	}

	var errs error
	for _, deviceDesc := range devices.Descriptions {
		usb, err := ctx.OpenDeviceWithVIDPID(deviceDesc.VID, deviceDesc.PID)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if usb == nil {
			continue
		}

		a := &App{
			ctx:     ctx,
			usb:     usb,
			Desc:    &deviceDesc,
			Timeout: DefaultTimeout,
		}
		if helper, err := heimdall.Find(); err == nil {
			glog.V(1).Infof("Using heimdall helper at %s", helper.Path())
			a.helper = helper
		}
		glog.Infof("Found %s (%s:%s) in download mode",
			deviceDesc.Family, deviceDesc.VID, deviceDesc.PID)
		return a, nil
	}

	ctx.Close()
	if errs == nil {
		return nil, devices.ErrNotFound
	}
	return nil, multierror.Append(devices.ErrNotFound, errs)
}

// Close tears everything down: session end (best effort), interface
// release, device and context close. Safe to call once, always.
func (a *App) Close() {
	if a.sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.sess.End(ctx)
		cancel()
		a.sess = nil
	}
	if a.usb != nil {
		a.usb.Close()
		a.usb = nil
	}
	if a.ctx != nil {
		a.ctx.Close()
		a.ctx = nil
	}
}

// HelperAvailable reports whether destructive operations will be routed
// through heimdall instead of the native protocol.
func (a *App) HelperAvailable() bool {
	return a.helper != nil
}

// Session claims the interface and completes the download-mode handshake
// on first use. A session is single use; once it fails or ends, the App
// is done and the caller starts over.
func (a *App) Session(ctx context.Context) (*odin.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	t, err := devices.Open(a.usb, a.Timeout)
	if err != nil {
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	s := odin.New(t)
	if err := s.Begin(ctx); err != nil {
		t.Close()
		return nil, err
	}
	a.sess = s
	return s, nil
}

// Detect verifies the device answers download-mode traffic, via the
// helper when present, natively otherwise.
func (a *App) Detect(ctx context.Context) error {
	if a.helper != nil {
		return a.helper.Detect(ctx)
	}
	_, err := a.Session(ctx)
	return err
}

// PIT returns the partition catalog for this session, fetching it on
// first use and caching the raw blob on disk. Both paths feed the same
// parser, so the catalog looks the same no matter where the blob came
// from.
func (a *App) PIT(ctx context.Context) (*pit.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}

	var blob []byte
	var c *pit.Catalog
	var err error
	if a.helper != nil {
		blob, err = a.helper.DownloadPIT(ctx)
		if err != nil {
			return nil, fmt.Errorf("helper PIT download: %w", err)
		}
		c, err = pit.Parse(blob)
		if err != nil {
			return nil, err
		}
	} else {
		s, serr := a.Session(ctx)
		if serr != nil {
			return nil, serr
		}
		c, blob, err = pit.Fetch(ctx, s)
		if err != nil {
			return nil, err
		}
	}

	if err := pitcache.Store(a.Desc.PID, blob); err != nil {
		glog.Warningf("Could not cache PIT: %v", err)
	}
	a.catalog = c
	a.rawPIT = blob
	return c, nil
}

// RawPIT returns the catalog together with the raw blob it was parsed
// from, fetching on first use like PIT.
func (a *App) RawPIT(ctx context.Context) (*pit.Catalog, []byte, error) {
	c, err := a.PIT(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, a.rawPIT, nil
}

// RefreshPIT drops the memoized catalog so the next PIT call re-fetches
// from the device. The old catalog value stays valid; it is replaced,
// never edited.
func (a *App) RefreshPIT() {
	a.catalog = nil
	a.rawPIT = nil
}
