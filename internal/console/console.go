// Package console assembles the two heaven pages: the dashboard, which
// polls the port status grid, and the port page, which bridges the serial
// console and polls the port's header and device information.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/heaven-console/tui/internal/client"
	"github.com/heaven-console/tui/internal/document"
	"github.com/heaven-console/tui/internal/refresh"
	"github.com/heaven-console/tui/internal/screen"
	"github.com/heaven-console/tui/internal/serial"
)

// Region ids and their sources, as laid out by the heaven pages.
const (
	RegionPortStatus = "portstatus"
	RegionHeader     = "header"
	RegionDevInfo    = "devinfo"

	SourcePortStatus = "portstatus.html"
	SourceHeader     = "header.html"
	SourceDevInfo    = "devinfo.html"

	abortRef  = "abort"
	serialRef = "serial"
)

// Options tune both pages. Zero values take the package defaults.
type Options struct {
	RefreshInterval time.Duration
	ReconnectDelay  time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration

	Logger       zerolog.Logger
	OnEvent      func(serial.Event)
	OnFetchError func(targetID, source string, err error)
}

func (o Options) refresher(f refresh.Fetcher, doc refresh.Document) *refresh.Refresher {
	opts := []refresh.Option{refresh.WithLogger(o.Logger)}
	if o.RefreshInterval > 0 {
		opts = append(opts, refresh.WithInterval(o.RefreshInterval))
	}
	if o.OnFetchError != nil {
		opts = append(opts, refresh.WithErrorHook(o.OnFetchError))
	}
	return refresh.New(f, doc, opts...)
}

// PortPage is the live view of one port.
type PortPage struct {
	Label   string
	Regions *document.Regions
	Surface screen.Surface

	http    *client.HTTPClient
	bridge  *serial.ConnectionManager
	reloads *refresh.Refresher
	logger  zerolog.Logger
}

// NewBridge builds the serial bridge for the port labelled label without
// the rest of the page. Inbound serial bytes render on surface.
func NewBridge(c *client.HTTPClient, label string, surface io.Writer, o Options) *serial.ConnectionManager {
	page := c.At(client.PortPath(label))
	dialer := &serial.WebSocketDialer{
		URL:          page.WebSocketURL(serialRef),
		Header:       page.AuthHeader(),
		PingInterval: o.PingInterval,
		PongTimeout:  o.PongTimeout,
		WriteTimeout: o.WriteTimeout,
	}
	opts := []serial.Option{serial.WithLogger(o.Logger.With().Str("port", label).Logger())}
	if o.ReconnectDelay > 0 {
		opts = append(opts, serial.WithReconnectDelay(o.ReconnectDelay))
	}
	if o.OnEvent != nil {
		opts = append(opts, serial.WithEventHook(o.OnEvent))
	}
	return serial.NewConnectionManager(dialer, surface, opts...)
}

// NewPortPage wires a port page for label. Inbound serial bytes render on
// surface.
func NewPortPage(c *client.HTTPClient, label string, surface screen.Surface, o Options) *PortPage {
	page := c.At(client.PortPath(label))
	regions := document.New()
	logger := o.Logger.With().Str("port", label).Logger()
	reloadOpts := o
	reloadOpts.Logger = logger
	return &PortPage{
		Label:   label,
		Regions: regions,
		Surface: surface,
		http:    page,
		bridge:  NewBridge(c, label, surface, o),
		reloads: reloadOpts.refresher(page, regions),
		logger:  logger,
	}
}

// Run starts the header and devinfo reloaders and keeps the serial bridge
// attached until ctx is cancelled.
func (p *PortPage) Run(ctx context.Context) error {
	p.reloads.Register(RegionHeader, SourceHeader)
	p.reloads.Register(RegionDevInfo, SourceDevInfo)
	defer p.reloads.StopAll()

	err := p.bridge.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Send forwards typed input to the serial console.
func (p *PortPage) Send(b []byte) error {
	return p.bridge.Send(b)
}

// State reports the serial bridge state.
func (p *PortPage) State() serial.State {
	return p.bridge.State()
}

// StopReloaders cancels the page's fragment reloaders.
func (p *PortPage) StopReloaders() {
	p.reloads.StopAll()
}

// Reloaders returns the number of active reloaders.
func (p *PortPage) Reloaders() int {
	return p.reloads.Len()
}

// Abort aborts the port's job. Only a 2xx response clears the terminal;
// any failure leaves it untouched and is returned.
func (p *PortPage) Abort(ctx context.Context) error {
	if err := p.http.Abort(ctx, abortRef); err != nil {
		p.logger.Warn().Err(err).Msg("abort failed")
		return fmt.Errorf("abort %s: %w", p.Label, err)
	}
	p.Surface.Clear()
	p.logger.Info().Msg("job aborted, terminal cleared")
	return nil
}

// Dashboard is the port status overview.
type Dashboard struct {
	Regions *document.Regions

	http    *client.HTTPClient
	reloads *refresh.Refresher
	logger  zerolog.Logger
}

// NewDashboard creates the dashboard page at the server root.
func NewDashboard(c *client.HTTPClient, o Options) *Dashboard {
	page := c.At("/")
	regions := document.New()
	return &Dashboard{
		Regions: regions,
		http:    page,
		reloads: o.refresher(page, regions),
		logger:  o.Logger,
	}
}

// Run polls the port status grid until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	d.reloads.Register(RegionPortStatus, SourcePortStatus)
	<-ctx.Done()
	d.reloads.StopAll()
	return nil
}

// StopReloaders cancels the dashboard's reloader.
func (d *Dashboard) StopReloaders() {
	d.reloads.StopAll()
}

// Reloaders returns the number of active reloaders.
func (d *Dashboard) Reloaders() int {
	return d.reloads.Len()
}

// AbortJob aborts the job on the port labelled job. The dashboard keeps no
// state about it; the outcome is only returned.
func (d *Dashboard) AbortJob(ctx context.Context, job string) error {
	if err := d.http.Abort(ctx, client.AbortPath(job)); err != nil {
		d.logger.Warn().Err(err).Str("port", job).Msg("abort failed")
		return fmt.Errorf("abort %s: %w", job, err)
	}
	d.logger.Info().Str("port", job).Msg("job aborted")
	return nil
}
