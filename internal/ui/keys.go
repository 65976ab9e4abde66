package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the status TUI.
type KeyMap struct {
	CycleSort   key.Binding
	ReverseSort key.Binding
	ShowAll     key.Binding
	Refresh     key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		CycleSort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort column"),
		),
		ReverseSort: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reverse sort"),
		),
		ShowAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "show finished"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R", "ctrl+l"),
			key.WithHelp("R", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
