package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bnema/gesturesd/internal/daemon"
	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxHistory = 200

// EventFeed bridges loop events into a bubbletea program without ever
// blocking the dispatch loop. Events arriving while the buffer is full are
// dropped and counted.
type EventFeed struct {
	ch      chan daemon.Event
	dropped atomic.Uint64
}

// NewEventFeed creates a feed buffering up to size events
func NewEventFeed(size int) *EventFeed {
	return &EventFeed{ch: make(chan daemon.Event, size)}
}

// Observe implements daemon.Observer
func (f *EventFeed) Observe(ev daemon.Event) {
	select {
	case f.ch <- ev:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns how many events were lost to a full buffer
func (f *EventFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// EventMsg carries one loop event into the model
type EventMsg daemon.Event

func (f *EventFeed) wait() tea.Cmd {
	return func() tea.Msg {
		return EventMsg(<-f.ch)
	}
}

type watchKeys struct {
	Quit  key.Binding
	Pause key.Binding
	Clear key.Binding
}

func defaultWatchKeys() watchKeys {
	return watchKeys{
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Pause: key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
		Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	}
}

type historyEntry struct {
	at   time.Time
	line string
}

type deviceView struct {
	attached bool
	current  *gesture.Classification
}

// WatchModel shows live classifications and dispatches
type WatchModel struct {
	feed    *EventFeed
	backend string
	keys    watchKeys
	spinner spinner.Model
	history viewport.Model

	devices map[string]*deviceView
	entries []historyEntry
	paused  bool

	dispatches uint64
	failures   uint64

	width, height int
	now           func() time.Time
}

// NewWatchModel creates the watch view for a feed
func NewWatchModel(feed *EventFeed, backend string) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &WatchModel{
		feed:    feed,
		backend: backend,
		keys:    defaultWatchKeys(),
		spinner: s,
		history: viewport.New(80, 10),
		devices: make(map[string]*deviceView),
		now:     time.Now,
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.wait())
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.entries = nil
			m.refresh()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.history.Width = msg.Width
		m.history.Height = max(3, msg.Height-8-len(m.devices))
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(daemon.Event(msg))
		return m, m.feed.wait()
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *WatchModel) device(id string) *deviceView {
	d, ok := m.devices[id]
	if !ok {
		d = &deviceView{}
		m.devices[id] = d
	}
	return d
}

func (m *WatchModel) apply(ev daemon.Event) {
	switch ev.Kind {
	case daemon.EventAttached:
		m.device(ev.Device).attached = true
		m.record(FormatStatus(true, ev.Device+" attached"))
	case daemon.EventDetached:
		d := m.device(ev.Device)
		d.attached, d.current = false, nil
		m.record(FormatStatus(false, ev.Device+" detached"))
	case daemon.EventLost:
		d := m.device(ev.Device)
		d.attached, d.current = false, nil
		m.record(FormatStatus(false, ErrorStyle.Render(fmt.Sprintf("%s lost: %v", ev.Device, ev.Err))))
	case daemon.EventClassified:
		c := ev.Classification
		m.device(ev.Device).current = &c
		if c.Terminal() {
			m.record(SubtleStyle.Render(ev.Device) + " " + FormatClassification(c))
		}
	case daemon.EventDispatched:
		m.dispatches++
		if ev.Err != nil {
			m.failures++
		}
		// pointer motion is too chatty for the history
		if ev.Dispatch.Kind == gesture.DispatchInject && ev.Dispatch.Op.Type == gesture.OpMove && ev.Err == nil {
			return
		}
		m.record(SubtleStyle.Render(ev.Device) + " " + FormatDispatch(ev.Dispatch, ev.Err))
	}
}

func (m *WatchModel) record(line string) {
	if m.paused {
		return
	}
	m.entries = append(m.entries, historyEntry{at: m.now(), line: line})
	if len(m.entries) > maxHistory {
		m.entries = m.entries[len(m.entries)-maxHistory:]
	}
	m.refresh()
}

func (m *WatchModel) refresh() {
	lines := make([]string, len(m.entries))
	for i, e := range m.entries {
		lines[i] = MutedStyle.Render(e.at.Format("15:04:05.000")) + " " + e.line
	}
	m.history.SetContent(strings.Join(lines, "\n"))
	m.history.GotoBottom()
}

func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("gesturesd watch"))
	b.WriteString("  " + SubtleStyle.Render("backend: "+m.backend))
	b.WriteString("\n\n")

	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		b.WriteString(m.spinner.View() + " " + SubtleStyle.Render("waiting for touchpads...") + "\n")
	}
	for _, id := range ids {
		d := m.devices[id]
		line := FormatStatus(d.attached, BoldStyle.Render(id))
		switch {
		case d.current != nil && !d.current.Terminal():
			line += "  " + FormatClassification(*d.current)
		case d.attached:
			line += "  " + m.spinner.View() + SubtleStyle.Render(" idle")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(CreateSeparator(max(m.width, 20), "─") + "\n")
	b.WriteString(m.history.View() + "\n")

	status := fmt.Sprintf("%d dispatches, %d failed", m.dispatches, m.failures)
	if dropped := m.feed.Dropped(); dropped > 0 {
		status += fmt.Sprintf(", %d events dropped", dropped)
	}
	if m.paused {
		status += "  " + WarningStyle.Render("[paused]")
	}
	controls := []string{
		FormatControl(m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc),
		FormatControl(m.keys.Pause.Help().Key, m.keys.Pause.Help().Desc),
		FormatControl(m.keys.Clear.Help().Key, m.keys.Clear.Help().Desc),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, SubtleStyle.Render(status), "   ", strings.Join(controls, "  •  ")))
	return b.String()
}
