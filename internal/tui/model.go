package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Reject form inputs, in tab order.
const (
	inputField = iota
	inputIssue
	inputExpected
	inputCount
)

type projectionMsg struct{ proj session.Projection }

type formMsg struct{ form session.FormStructure }

type savedMsg struct{ result session.SaveResult }

// errMsg carries a failed operation. proj is set when the operation
// committed despite the error.
type errMsg struct {
	err  error
	proj *session.Projection
}

// Option configures a Model.
type Option func(*Model)

// WithResetOnRestart makes R ask the test-data collaborator to reset.
func WithResetOnRestart(reset bool) Option {
	return func(m *Model) { m.resetOnRestart = reset }
}

// Model is the bubbletea model for one session.
type Model struct {
	ctx     context.Context
	backend Backend

	proj   session.Projection
	loaded bool
	form   session.FormStructure
	err    error
	notice string

	answers   textinput.Model
	rejecting bool
	inputs    []textinput.Model
	focus     int
	priority  session.Priority
	category  int

	resetOnRestart bool
	progress       progress.Model
	help           help.Model
	width          int
	quitting       bool
}

// NewModel creates a model driving backend.
func NewModel(ctx context.Context, backend Backend, opts ...Option) Model {
	answers := textinput.New()
	answers.Placeholder = "env=staging, browser=firefox"
	answers.Prompt = "› "
	answers.CharLimit = 512

	inputs := make([]textinput.Model, inputCount)
	for i := range inputs {
		in := textinput.New()
		in.Prompt = "› "
		in.CharLimit = 1024
		inputs[i] = in
	}
	inputs[inputField].Placeholder = "field (optional)"
	inputs[inputField].ShowSuggestions = true
	inputs[inputIssue].Placeholder = "what went wrong"
	inputs[inputExpected].Placeholder = "what should have happened"

	m := Model{
		ctx:      ctx,
		backend:  backend,
		answers:  answers,
		inputs:   inputs,
		priority: session.PriorityNiceToHave,
		category: len(session.Categories) - 1,
		progress: progress.New(progress.WithGradient("#00ffff", "#00ff00"), progress.WithWidth(40)),
		help:     help.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Projection returns the last projection the UI rendered.
func (m Model) Projection() session.Projection {
	return m.proj
}

// Init loads the projection and the feedback form.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.loadForm(), textinput.Blink)
}

func (m Model) load() tea.Cmd {
	return m.call(m.backend.Projection)
}

func (m Model) loadForm() tea.Cmd {
	return func() tea.Msg {
		form, err := m.backend.FeedbackForm(m.ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return formMsg{form: form}
	}
}

// call runs op and reports the projection or the error.
func (m Model) call(op func(context.Context) (session.Projection, error)) tea.Cmd {
	return func() tea.Msg {
		proj, err := op(m.ctx)
		if err != nil {
			msg := errMsg{err: err}
			if proj.Session.ID != "" {
				msg.proj = &proj
			}
			return msg
		}
		return projectionMsg{proj: proj}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if w := msg.Width - 20; w > 10 && w < 60 {
			m.progress.Width = w
		}
		return m, nil

	case projectionMsg:
		return m.apply(msg.proj), nil

	case formMsg:
		m.form = msg.form
		suggestions := make([]string, 0, len(msg.form.Fields))
		for _, f := range msg.form.Fields {
			suggestions = append(suggestions, f.Value)
		}
		m.inputs[inputField].SetSuggestions(suggestions)
		return m, nil

	case savedMsg:
		m.err = nil
		m.notice = fmt.Sprintf("saved snapshot %s", msg.result.SnapshotID)
		return m, nil

	case errMsg:
		if msg.proj != nil {
			m = m.apply(*msg.proj)
		}
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.rejecting {
			return m.updateReject(msg)
		}
		if m.loaded && m.proj.Status() == session.StatusPreFlight {
			return m.updatePreFlight(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) apply(proj session.Projection) Model {
	prev := m.proj.Status()
	m.proj = proj
	m.loaded = true
	m.err = nil
	m.notice = ""
	if proj.Status() == session.StatusPreFlight && prev != session.StatusPreFlight {
		m.answers.Reset()
		m.answers.Focus()
	}
	if proj.Status() != session.StatusTesting {
		m.rejecting = false
	}
	return m
}

func (m Model) updatePreFlight(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Submit):
		answers, err := parseAnswers(m.answers.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.answers.Blur()
		return m, m.call(func(ctx context.Context) (session.Projection, error) {
			return m.backend.CompletePreFlight(ctx, answers)
		})
	case key.Matches(msg, keys.Cancel):
		return m, m.call(m.backend.End)
	}
	var cmd tea.Cmd
	m.answers, cmd = m.answers.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	status := m.proj.Status()
	switch {
	case status == session.StatusEnded:
		if key.Matches(msg, keys.End) {
			m.quitting = true
			return m, tea.Quit
		}
	case key.Matches(msg, keys.Approve) && status == session.StatusTesting:
		return m, m.call(func(ctx context.Context) (session.Projection, error) {
			return m.backend.Approve(ctx, "")
		})
	case key.Matches(msg, keys.Reject) && status == session.StatusTesting:
		return m.openReject(), textinput.Blink
	case key.Matches(msg, keys.Resolve) && status == session.StatusBlocked:
		return m, m.call(m.backend.ResolveBlockers)
	case key.Matches(msg, keys.Save):
		return m, func() tea.Msg {
			res, err := m.backend.Save(m.ctx, "")
			if err != nil {
				return errMsg{err: err}
			}
			return savedMsg{result: res}
		}
	case key.Matches(msg, keys.Restart):
		reset := m.resetOnRestart
		return m, m.call(func(ctx context.Context) (session.Projection, error) {
			return m.backend.Restart(ctx, reset)
		})
	case key.Matches(msg, keys.End):
		return m, m.call(m.backend.End)
	}
	return m, nil
}

func (m Model) openReject() Model {
	m.rejecting = true
	m.err = nil
	m.priority = session.PriorityNiceToHave
	m.category = len(session.Categories) - 1
	for i := range m.inputs {
		m.inputs[i].Reset()
		m.inputs[i].Blur()
	}
	m.focus = inputIssue
	m.inputs[m.focus].Focus()
	return m
}

func (m Model) updateReject(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.rejecting = false
		return m, nil
	case key.Matches(msg, keys.Next):
		m.inputs[m.focus].Blur()
		step := 1
		if msg.String() == "shift+tab" {
			step = inputCount - 1
		}
		m.focus = (m.focus + step) % inputCount
		return m, m.inputs[m.focus].Focus()
	case key.Matches(msg, keys.Priority):
		if m.priority == session.PriorityBlocker {
			m.priority = session.PriorityNiceToHave
		} else {
			m.priority = session.PriorityBlocker
		}
		return m, nil
	case key.Matches(msg, keys.Category):
		m.category = (m.category + 1) % len(session.Categories)
		return m, nil
	case key.Matches(msg, keys.Submit):
		in := m.feedback()
		m.rejecting = false
		return m, m.call(func(ctx context.Context) (session.Projection, error) {
			return m.backend.Reject(ctx, in)
		})
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) feedback() session.FeedbackInput {
	return session.FeedbackInput{
		Field:    m.inputs[inputField].Value(),
		Issue:    m.inputs[inputIssue].Value(),
		Expected: m.inputs[inputExpected].Value(),
		Priority: m.priority,
		Category: session.Categories[m.category],
	}
}

// parseAnswers reads "k=v, k2=v2". Empty input means no answers.
func parseAnswers(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("answer %q must look like key=value", pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
