// Package ui is a terminal dashboard over the daemon's state file. It is
// a pure reader: it polls the persisted tracked-set and renders it, never
// talking to the daemon process itself.
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

const defaultRefresh = time.Second

type stateMsg struct {
	set *tracker.Set
	err error
}

type tickMsg time.Time

// Model holds all dashboard state. Update is a pure state transition;
// reads of the state file happen in tea.Cmd functions.
type Model struct {
	store   *store.FileStore
	keys    KeyMap
	refresh time.Duration

	width  int
	height int

	sortKey  SortKey
	sortDesc bool
	showAll  bool

	set     *tracker.Set
	loadErr error
	now     time.Time
}

func NewModel(st *store.FileStore) Model {
	return Model{
		store:    st,
		keys:     DefaultKeyMap(),
		refresh:  defaultRefresh,
		sortKey:  SortCPU,
		sortDesc: true,
		now:      time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), tick(m.refresh))
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		set, err := m.store.Load()
		return stateMsg{set: set, err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.CycleSort):
			m.sortKey = m.sortKey.Next()
		case key.Matches(msg, m.keys.ReverseSort):
			m.sortDesc = !m.sortDesc
		case key.Matches(msg, m.keys.ShowAll):
			m.showAll = !m.showAll
		case key.Matches(msg, m.keys.Refresh):
			return m, m.loadCmd()
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.loadCmd(), tick(m.refresh))
	case stateMsg:
		m.now = time.Now()
		m.loadErr = msg.err
		if msg.err == nil {
			m.set = msg.set
		}
		return m, nil
	}
	return m, nil
}

// visible returns the rows to render, filtered and sorted.
func (m Model) visible() []*tracker.TrackedProcess {
	if m.set == nil {
		return nil
	}
	procs := make([]*tracker.TrackedProcess, 0, m.set.Len())
	for _, p := range m.set.Procs {
		if !m.showAll && p.State.Terminal() {
			continue
		}
		procs = append(procs, p)
	}
	sortProcs(procs, m.sortKey, m.sortDesc, m.now)
	return procs
}

// Run starts the dashboard in the alternate screen until quit.
func Run(st *store.FileStore) error {
	p := tea.NewProgram(NewModel(st), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
