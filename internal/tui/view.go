package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.loaded {
		if m.err != nil {
			return containerStyle.Render(errorStyle.Render("⚠ " + m.err.Error()))
		}
		return containerStyle.Render(dimStyle.Render("loading session…"))
	}

	var b strings.Builder
	sess := m.proj.Session
	b.WriteString(headerStyle.Render(" verifyd ") + "  " + valueStyle.Render(sess.FeatureName) + "  " + statusBadge(string(sess.Status)))
	b.WriteString("\n" + dimStyle.Render(sess.ID) + "\n")

	var bindings []key.Binding
	switch {
	case m.rejecting:
		b.WriteString(m.viewReject())
		bindings = []key.Binding{keys.Submit, keys.Next, keys.Priority, keys.Category, keys.Cancel}
	case sess.Status == session.StatusPreFlight:
		b.WriteString(m.viewPreFlight())
		bindings = []key.Binding{keys.Submit, key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "end"))}
	case sess.Status == session.StatusTesting:
		b.WriteString(m.viewCheckpoint())
		bindings = []key.Binding{keys.Approve, keys.Reject, keys.Save, keys.Restart, keys.End}
	case sess.Status == session.StatusBlocked:
		b.WriteString(m.viewCheckpoint())
		b.WriteString(m.viewBlockers())
		bindings = []key.Binding{keys.Resolve, keys.Save, keys.Restart, keys.End}
	case sess.Status == session.StatusCompleted:
		b.WriteString(m.viewSummary("All checkpoints reviewed"))
		bindings = []key.Binding{keys.Save, keys.Restart, keys.End}
	default:
		b.WriteString(m.viewSummary("Session ended"))
		bindings = []key.Binding{key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("⚠ "+m.err.Error()) + "\n")
	} else if m.notice != "" {
		b.WriteString("\n" + passStyle.Render("✓ "+m.notice) + "\n")
	}
	b.WriteString("\n" + m.help.View(helpKeys(bindings)))
	return containerStyle.Render(b.String())
}

func (m Model) viewPreFlight() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Pre-flight") + "\n")
	b.WriteString(labelStyle.Render("  Checkpoints: ") + valueStyle.Render(fmt.Sprint(m.proj.Progress.Total)) + "\n")
	b.WriteString(dimStyle.Render("  Answers as key=value pairs, comma separated.") + "\n")
	b.WriteString("  " + m.answers.View() + "\n")
	return b.String()
}

func (m Model) viewCheckpoint() string {
	var b strings.Builder
	p := m.proj.Progress
	b.WriteString(sectionStyle.Render(fmt.Sprintf("┃ Checkpoint %d of %d", p.Current+1, p.Total)) + "\n")
	if cp := m.proj.Current; cp != nil {
		b.WriteString(labelStyle.Render("  Action:   ") + valueStyle.Render(cp.Action) + "\n")
		b.WriteString(labelStyle.Render("  Expected: ") + valueStyle.Render(cp.ExpectedResult) + "\n")
		if cp.Element != "" {
			b.WriteString(labelStyle.Render("  Element:  ") + dimStyle.Render(cp.Element) + "\n")
		}
	}
	b.WriteString("  " + m.progress.ViewAs(float64(p.Percentage)/100) + " " + dimStyle.Render(fmt.Sprintf("%d%%", p.Percentage)) + "\n")
	return b.String()
}

func (m Model) viewBlockers() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("┃ Blockers (%d)", len(m.proj.Blockers))) + "\n")
	for _, item := range m.proj.Blockers {
		line := fmt.Sprintf("  ■ %s → %s", item.Issue, item.Expected)
		if item.Field != "" {
			line += dimStyle.Render(" [" + item.Field + "]")
		}
		b.WriteString(errorStyle.Render(line) + "\n")
	}
	return b.String()
}

func (m Model) viewReject() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Reject checkpoint") + "\n")
	labels := [inputCount]string{"Field", "Issue", "Expected"}
	for i, in := range m.inputs {
		label := labelStyle.Render(fmt.Sprintf("  %-9s", labels[i]))
		if i == m.focus {
			label = focusedStyle.Render(fmt.Sprintf("▸ %-9s", labels[i]))
		}
		b.WriteString(label + in.View() + "\n")
	}
	prio := passStyle.Render(string(m.priority))
	if m.priority == session.PriorityBlocker {
		prio = errorStyle.Render(string(m.priority))
	}
	b.WriteString(labelStyle.Render("  Priority ") + prio + "\n")
	b.WriteString(labelStyle.Render("  Category ") + valueStyle.Render(string(session.Categories[m.category])) + "\n")
	return b.String()
}

func (m Model) viewSummary(title string) string {
	s := m.proj.Session.Summary
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ "+title) + "\n")
	b.WriteString(fmt.Sprintf("  %s %s  %s %s  %s %s  %s %s\n",
		labelStyle.Render("passed"), passStyle.Render(fmt.Sprint(s.Passed)),
		labelStyle.Render("failed"), warnStyle.Render(fmt.Sprint(s.Failed)),
		labelStyle.Render("blockers"), errorStyle.Render(fmt.Sprint(s.Blockers)),
		labelStyle.Render("nice-to-have"), valueStyle.Render(fmt.Sprint(s.NiceToHave)),
	))
	if s.Passed+s.Failed > 0 {
		b.WriteString(summaryChart(s) + "\n")
	}
	return b.String()
}

// summaryChart draws the outcome counts as a bar chart.
func summaryChart(s session.Summary) string {
	bar := func(label string, v int, color string) barchart.BarData {
		return barchart.BarData{
			Label: label,
			Values: []barchart.BarValue{
				{Name: label, Value: float64(v), Style: lipgloss.NewStyle().Foreground(lipgloss.Color(color))},
			},
		}
	}
	chart := barchart.New(36, 8)
	chart.PushAll([]barchart.BarData{
		bar("pass", s.Passed, "46"),
		bar("fail", s.Failed, "226"),
		bar("block", s.Blockers, "196"),
		bar("nice", s.NiceToHave, "45"),
	})
	chart.Draw()
	return chart.View()
}
