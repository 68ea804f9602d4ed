package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/heaven-console/tui/internal/client"
	"github.com/heaven-console/tui/internal/console"
	"github.com/heaven-console/tui/internal/document"
	"github.com/heaven-console/tui/internal/screen"
	"github.com/heaven-console/tui/internal/serial"
	"github.com/heaven-console/tui/internal/theme"
	"github.com/heaven-console/tui/internal/views/dashboard"
	"github.com/heaven-console/tui/internal/views/debug"
	"github.com/heaven-console/tui/internal/views/detail"
	"github.com/heaven-console/tui/internal/views/help"
	"github.com/heaven-console/tui/internal/views/status"
)

// Mode identifies which heaven page is shown.
type Mode int

const (
	ModeDashboard Mode = iota
	ModePort
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHelp
)

const (
	defaultAbortTimeout = 10 * time.Second
	eventBuffer         = 64
)

// Options configures the root model.
type Options struct {
	Console      console.Options
	Scrollback   int
	AbortTimeout time.Duration
	// Port opens that port's page instead of the dashboard.
	Port string
}

// Messages. gen ties a message to the page that produced it so messages
// from a page that has been closed are ignored.
type (
	regionsMsg  struct{ gen int }
	screenMsg   struct{ gen int }
	pageDoneMsg struct {
		gen int
		err error
	}
	bridgeMsg struct {
		gen int
		ev  serial.Event
	}
	fetchErrMsg struct {
		gen            int
		target, source string
		err            error
	}
	abortMsg struct {
		label string
		err   error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	http   *client.HTTPClient
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	events chan tea.Msg

	keys    KeyMap
	width   int
	height  int
	mode    Mode
	overlay Overlay
	input   bool

	// Current page.
	gen        int
	pageCtx    context.Context
	pageCancel context.CancelFunc
	dash       *console.Dashboard
	page       *console.PortPage
	buf        *screen.Buffer
	seen       map[string]uint64 // region versions already rendered
	start      tea.Cmd

	// Sub-views.
	statusBar status.Model
	dashboard dashboard.Model
	detail    detail.Model
	debug     debug.Model
	spinner   spinner.Model
}

// New creates the root model. Nothing touches the network until the
// program runs Init.
func New(http *client.HTTPClient, opts Options) Model {
	if opts.AbortTimeout <= 0 {
		opts.AbortTimeout = defaultAbortTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		http:      http,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan tea.Msg, eventBuffer),
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		dashboard: dashboard.New(),
		debug:     debug.New(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
	if opts.Port != "" {
		m.start = m.openPort(opts.Port)
	} else {
		m.start = m.openDashboard()
	}
	return m
}

// Init starts the first page.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.start, m.waitEvent(), m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.detail.SetSize(msg.Width, m.bodyHeight())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case regionsMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.syncRegions()
		return m, waitSignal(m.pageCtx, m.regionsChanged(), regionsMsg{gen: m.gen})

	case screenMsg:
		if msg.gen != m.gen || m.buf == nil {
			return m, nil
		}
		m.detail.SetLines(m.buf.Lines())
		return m, waitSignal(m.pageCtx, m.buf.Changed(), screenMsg{gen: m.gen})

	case bridgeMsg:
		if msg.gen == m.gen {
			m.applyEvent(msg.ev)
		}
		return m, m.waitEvent()

	case fetchErrMsg:
		if msg.gen == m.gen {
			m.debug.Addf(debug.KindFetch, "%s <- %s: %v", msg.target, msg.source, msg.err)
			m.statusBar.LastErr = fmt.Sprintf("%s: %v", msg.source, msg.err)
		}
		return m, m.waitEvent()

	case abortMsg:
		if msg.err != nil {
			m.debug.Addf(debug.KindAbort, "%v", msg.err)
			m.statusBar.Notice = ""
			m.statusBar.LastErr = msg.err.Error()
		} else {
			m.debug.Addf(debug.KindAbort, "aborted %s", msg.label)
			m.statusBar.Notice = "aborted " + msg.label
			m.statusBar.LastErr = ""
		}
		return m, nil

	case pageDoneMsg:
		if msg.gen == m.gen && msg.err != nil {
			m.debug.Addf(debug.KindError, "page stopped: %v", msg.err)
			m.statusBar.LastErr = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.statusBar.Spinner = m.spinner.View()
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	if m.input {
		if key.Matches(msg, m.keys.Escape) {
			m.input = false
			m.statusBar.Input = false
			return m, nil
		}
		if b := inputBytes(msg); len(b) > 0 {
			if err := m.page.Send(b); err != nil {
				m.statusBar.LastErr = err.Error()
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	}

	if m.mode == ModeDashboard {
		switch {
		case key.Matches(msg, m.keys.Down):
			m.dashboard.Next()
		case key.Matches(msg, m.keys.Up):
			m.dashboard.Prev()
		case key.Matches(msg, m.keys.Enter):
			if label := m.dashboard.SelectedLabel(); label != "" {
				return m, m.openPort(label)
			}
		case key.Matches(msg, m.keys.Abort):
			if label := m.dashboard.SelectedLabel(); label != "" {
				m.debug.Addf(debug.KindAbort, "aborting %s", label)
				return m, m.abortJob(label)
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Input):
		m.input = true
		m.statusBar.Input = true
		return m, nil
	case key.Matches(msg, m.keys.Abort):
		m.debug.Addf(debug.KindAbort, "aborting %s", m.page.Label)
		return m, m.abortPort()
	case key.Matches(msg, m.keys.Escape):
		return m, m.openDashboard()
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayDebug:
		body = m.debug.View(m.width, m.bodyHeight())
	case OverlayHelp:
		body = help.View(m.width)
	default:
		if m.mode == ModePort {
			body = m.detail.View()
			if banner := m.disconnectBanner(); banner != "" {
				body = lipgloss.JoinVertical(lipgloss.Left, banner, body)
			}
		} else {
			body = m.dashboard.View()
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render(m.footer()),
	)
}

func (m Model) footer() string {
	switch {
	case m.input:
		return "  typing to the serial console  esc:stop"
	case m.mode == ModePort:
		return "  i:type  x:abort  pgup/pgdn:scroll  esc:dashboard  d:events  ?:help  q:quit"
	default:
		return "  j/k:select  enter:open  a:abort  d:events  ?:help  q:quit"
	}
}

func (m Model) disconnectBanner() string {
	if m.statusBar.State != serial.Disconnected.String() || m.statusBar.Attempt == 0 {
		return ""
	}
	text := " DISCONNECTED · Reconnecting"
	if m.statusBar.RetryIn != "" {
		text += " in " + m.statusBar.RetryIn
	}
	return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Background(theme.ColorDisconnected).Render(text + " ")
}

// bodyHeight is the space left between the status bar and the footer.
func (m Model) bodyHeight() int {
	return max(m.height-lipgloss.Height(m.statusBar.View())-1, 5)
}

func (m *Model) applyEvent(ev serial.Event) {
	m.statusBar.State = ev.State.String()
	m.statusBar.Attempt = ev.Attempt
	m.statusBar.RetryIn = ""
	if ev.RetryIn > 0 {
		m.statusBar.RetryIn = ev.RetryIn.String()
	}

	line := fmt.Sprintf("%s attempt=%d", ev.State, ev.Attempt)
	if ev.ConnID != "" {
		line += " conn=" + ev.ConnID
	}
	switch {
	case ev.Err != nil:
		m.debug.Addf(debug.KindSerial, "%s: %v", line, ev.Err)
		m.statusBar.LastErr = ev.Err.Error()
	default:
		m.debug.Add(debug.KindSerial, line)
		if ev.State == serial.Attached {
			m.statusBar.LastErr = ""
		}
	}
}

func (m *Model) syncRegions() {
	switch m.mode {
	case ModeDashboard:
		if s, ok := m.freshRegion(m.dash.Regions, console.RegionPortStatus); ok {
			m.dashboard.SetPortStatus(s)
		}
	case ModePort:
		if s, ok := m.freshRegion(m.page.Regions, console.RegionHeader); ok {
			m.detail.SetHeader(s)
		}
		if s, ok := m.freshRegion(m.page.Regions, console.RegionDevInfo); ok {
			m.detail.SetDevInfo(s)
		}
	}
}

// freshRegion returns region id when it was replaced since it was last
// rendered.
func (m *Model) freshRegion(r *document.Regions, id string) (string, bool) {
	v := r.Version(id)
	if v == 0 || v == m.seen[id] {
		return "", false
	}
	m.seen[id] = v
	return r.Get(id)
}

func (m *Model) regionsChanged() <-chan struct{} {
	if m.mode == ModePort {
		return m.page.Regions.Changed()
	}
	return m.dash.Regions.Changed()
}

// consoleOptions routes page callbacks into the event channel, tagged
// with the page generation.
func (m *Model) consoleOptions(gen int) console.Options {
	o := m.opts.Console
	events, ctx := m.events, m.ctx
	o.OnEvent = func(ev serial.Event) {
		post(ctx, events, bridgeMsg{gen: gen, ev: ev})
	}
	o.OnFetchError = func(target, source string, err error) {
		post(ctx, events, fetchErrMsg{gen: gen, target: target, source: source, err: err})
	}
	return o
}

func (m *Model) newPage() (int, context.Context) {
	m.closePage()
	m.gen++
	m.pageCtx, m.pageCancel = context.WithCancel(m.ctx)
	m.seen = make(map[string]uint64)
	m.overlay = OverlayNone
	m.input = false
	m.statusBar = status.Model{Width: m.width, Spinner: m.statusBar.Spinner}
	return m.gen, m.pageCtx
}

func (m *Model) openDashboard() tea.Cmd {
	gen, ctx := m.newPage()
	m.mode = ModeDashboard
	m.dash = console.NewDashboard(m.http, m.consoleOptions(gen))
	m.statusBar.Target = "dashboard"
	m.debug.Add(debug.KindNav, "dashboard")

	d := m.dash
	return tea.Batch(
		func() tea.Msg { return pageDoneMsg{gen: gen, err: d.Run(ctx)} },
		waitSignal(ctx, d.Regions.Changed(), regionsMsg{gen: gen}),
	)
}

func (m *Model) openPort(label string) tea.Cmd {
	gen, ctx := m.newPage()
	m.mode = ModePort
	m.buf = screen.NewBuffer(m.opts.Scrollback)
	m.page = console.NewPortPage(m.http, label, m.buf, m.consoleOptions(gen))
	m.detail = detail.New(label)
	m.detail.SetSize(m.width, m.bodyHeight())
	m.statusBar.Target = label
	m.statusBar.State = serial.Disconnected.String()
	m.debug.Addf(debug.KindNav, "port %s", label)

	p, buf := m.page, m.buf
	return tea.Batch(
		func() tea.Msg { return pageDoneMsg{gen: gen, err: p.Run(ctx)} },
		waitSignal(ctx, p.Regions.Changed(), regionsMsg{gen: gen}),
		waitSignal(ctx, buf.Changed(), screenMsg{gen: gen}),
	)
}

// closePage stops the current page. Its reloaders are stopped before this
// returns; the serial bridge closes as its context ends.
func (m *Model) closePage() {
	if m.pageCancel != nil {
		m.pageCancel()
	}
	if m.dash != nil {
		m.dash.StopReloaders()
	}
	if m.page != nil {
		m.page.StopReloaders()
	}
	m.dash, m.page, m.buf = nil, nil, nil
}

func (m *Model) shutdown() {
	m.closePage()
	m.cancel()
}

func (m Model) abortJob(label string) tea.Cmd {
	d, ctx, timeout := m.dash, m.ctx, m.opts.AbortTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return abortMsg{label: label, err: d.AbortJob(ctx, label)}
	}
}

func (m Model) abortPort() tea.Cmd {
	p, ctx, timeout := m.page, m.ctx, m.opts.AbortTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return abortMsg{label: p.Label, err: p.Abort(ctx)}
	}
}

func (m Model) waitEvent() tea.Cmd {
	events, ctx := m.events, m.ctx
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func waitSignal(ctx context.Context, ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// post hands msg to the UI without blocking the caller. When the UI is
// behind, the message is dropped; the status bar catches up on the next one.
func post(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	default:
	}
}
