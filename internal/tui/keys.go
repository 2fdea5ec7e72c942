package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Approve  key.Binding
	Reject   key.Binding
	Resolve  key.Binding
	Save     key.Binding
	Restart  key.Binding
	End      key.Binding
	Submit   key.Binding
	Cancel   key.Binding
	Next     key.Binding
	Priority key.Binding
	Category key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Approve:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
	Reject:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reject")),
	Resolve:  key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "resolve blockers")),
	Save:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
	Restart:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "restart")),
	End:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "end")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Next:     key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "next field")),
	Priority: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "priority")),
	Category: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "category")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

// helpKeys implements help.KeyMap for the current screen.
type helpKeys []key.Binding

func (h helpKeys) ShortHelp() []key.Binding  { return h }
func (h helpKeys) FullHelp() [][]key.Binding { return [][]key.Binding{h} }
