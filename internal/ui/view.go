package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/bsantraigi/ntfy-agent/internal/notifier"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	sortHiStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)

	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))  // green
	unknownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))  // yellow
	finishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")) // bright white
	crashedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))  // red
)

func stateStyle(st tracker.State) lipgloss.Style {
	switch st {
	case tracker.StateRunning:
		return runningStyle
	case tracker.StateUnknown:
		return unknownStyle
	case tracker.StateCrashed:
		return crashedStyle
	default:
		return finishedStyle
	}
}

type column struct {
	title string
	key   SortKey // zero when the column is not sortable
	width int
}

var columns = []column{
	{"PID", "", 7},
	{"USER", "", 10},
	{"STATE", "", 9},
	{"CPU%", SortCPU, 6},
	{"MEM", SortMemory, 9},
	{"GPU", SortGPU, 9},
	{"TIME", SortRuntime, 10},
	{"COMMAND", "", 0}, // flexible
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ntfy-agent"))
	b.WriteString("  ")
	b.WriteString(m.renderCounts())
	b.WriteString("\n\n")

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	for _, p := range m.visible() {
		b.WriteString(m.renderRow(p))
		b.WriteString("\n")
	}
	if m.loadErr != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("state read failed: " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.helpLine()))
	return b.String()
}

func (m Model) renderCounts() string {
	if m.set == nil {
		return helpStyle.Render("waiting for state...")
	}
	c := m.set.CountByState()
	parts := []string{
		runningStyle.Render(fmt.Sprintf("%d running", c[tracker.StateRunning])),
		unknownStyle.Render(fmt.Sprintf("%d unknown", c[tracker.StateUnknown])),
		finishedStyle.Render(fmt.Sprintf("%d finished", c[tracker.StateFinished])),
		crashedStyle.Render(fmt.Sprintf("%d crashed", c[tracker.StateCrashed])),
	}
	return strings.Join(parts, helpStyle.Render(" | "))
}

func (m Model) renderHeader() string {
	var cells []string
	for _, col := range columns {
		cell := col.title
		if col.width > 0 {
			cell = pad(cell, col.width)
		}
		if col.key != "" && col.key == m.sortKey {
			cells = append(cells, sortHiStyle.Render(cell))
		} else {
			cells = append(cells, headerStyle.Render(cell))
		}
	}
	return strings.Join(cells, " ")
}

func (m Model) renderRow(p *tracker.TrackedProcess) string {
	gpu := "-"
	if p.Metrics.HasGPU {
		gpu = fmt.Sprintf("%s MiB", humanize.CommafWithDigits(p.Metrics.GPUMemoryMiB, 0))
	}
	cells := []string{
		pad(fmt.Sprintf("%d", p.Key.PID), 7),
		pad(truncate(p.User, 10), 10),
		pad(string(p.State), 9),
		pad(fmt.Sprintf("%.1f", p.Metrics.CPUPercent), 6),
		pad(humanize.IBytes(p.Metrics.MemoryRSS), 9),
		pad(gpu, 9),
		pad(notifier.FormatDuration(p.Runtime(m.now)), 10),
		truncate(p.Cmdline, m.cmdWidth()),
	}
	return stateStyle(p.State).Render(strings.Join(cells, " "))
}

func (m Model) cmdWidth() int {
	fixed := 0
	for _, col := range columns {
		if col.width > 0 {
			fixed += col.width + 1
		}
	}
	w := m.width - fixed
	if w < 20 {
		return 20
	}
	return w
}

func (m Model) helpLine() string {
	mode := "active"
	if m.showAll {
		mode = "all"
	}
	return fmt.Sprintf("q quit | s sort (%s) | r reverse | a show: %s | R refresh", m.sortKey, mode)
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s[:w]
	}
	return s + strings.Repeat(" ", w-len(s))
}

func truncate(s string, w int) string {
	if w <= 0 || len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-3] + "..."
}
