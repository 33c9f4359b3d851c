package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yitech/klinechart/chart"
	"github.com/yitech/klinechart/widget"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#dddddd"))
	buttonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#aaaaaa")).Padding(0, 1)
	activeStyle  = buttonStyle.Background(lipgloss.Color("#3b4cca")).Foreground(lipgloss.Color("#ffffff"))
	menuStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#aaaaaa"))
	cursorStyle  = menuStyle.Foreground(lipgloss.Color("#ffffff")).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
)

// ── messages ──────────────────────────────────────────────────────────────────

type eventMsg struct{ ev widget.Event }

// ── model ─────────────────────────────────────────────────────────────────────

// model is the terminal host of the widget. All widget calls happen here, on
// the bubbletea loop.
type model struct {
	w *widget.Widget

	menuOpen bool
	cursor   int
	err      error

	width  int
	height int
}

func newModel(w *widget.Widget) model {
	return model{w: w}
}

// ── Init / Update / View ──────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return waitForEvent(m.w.Events())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.menuOpen {
			return m.updateMenu(msg)
		}
		return m.updateMain(msg)

	case eventMsg:
		m.w.Handle(msg.ev)
		return m, waitForEvent(m.w.Events())
	}

	return m, nil
}

func (m model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	intervals := m.w.Universe().Intervals
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p", "enter":
		m.menuOpen = true
		m.cursor = indexOf(m.w.Universe().Pairs, m.w.Selection().Pair)
	case "tab", "right", "l":
		i := indexOf(intervals, m.w.Selection().Interval)
		m.err = m.w.SetInterval(intervals[(i+1)%len(intervals)])
	case "shift+tab", "left", "h":
		i := indexOf(intervals, m.w.Selection().Interval)
		m.err = m.w.SetInterval(intervals[(i+len(intervals)-1)%len(intervals)])
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if i := int(key[0] - '1'); i < len(intervals) {
				m.err = m.w.SetInterval(intervals[i])
			}
		}
	}
	return m, nil
}

func (m model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pairs := m.w.Universe().Pairs
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "p", "q":
		m.menuOpen = false
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(pairs)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.menuOpen = false
		m.err = m.w.SetPair(pairs[m.cursor])
	}
	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "connecting…"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Binance Market Data"))
	b.WriteByte('\n')
	b.WriteString(m.renderSelector())
	b.WriteByte('\n')

	menuLines := 0
	if m.menuOpen {
		menu := m.renderMenu()
		menuLines = strings.Count(menu, "\n") + 1
		b.WriteString(menu)
		b.WriteByte('\n')
	}

	c := m.w.Chart()
	b.WriteString(titleStyle.Render(c.Title))
	b.WriteByte('\n')

	// Reserve: header, selector, menu, title, x-axis, time labels, legend, status.
	plotH := m.height - 7 - menuLines
	b.WriteString(chart.Plot(c, m.width, plotH))
	b.WriteByte('\n')
	b.WriteString(m.renderStatus())
	return b.String()
}

// ── helpers ───────────────────────────────────────────────────────────────────

// waitForEvent blocks on the widget's channel and returns a Cmd that fires eventMsg.
func waitForEvent(ch <-chan widget.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{<-ch}
	}
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return 0
}

func (m model) renderSelector() string {
	sel := m.w.Selection()
	parts := []string{activeStyle.Render(sel.Pair + " ▾")}
	for _, iv := range m.w.Universe().Intervals {
		if iv == sel.Interval {
			parts = append(parts, activeStyle.Render(iv))
		} else {
			parts = append(parts, buttonStyle.Render(iv))
		}
	}
	return strings.Join(parts, " ")
}

func (m model) renderMenu() string {
	pairs := m.w.Universe().Pairs
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		if i == m.cursor {
			lines[i] = cursorStyle.Render("▸ " + p)
		} else {
			lines[i] = menuStyle.Render("  " + p)
		}
	}
	return strings.Join(lines, "\n")
}

func (m model) renderStatus() string {
	var state string
	switch err := m.statusErr(); {
	case err != nil:
		state = problemStyle.Render(fmt.Sprintf("○ %s: %v", m.w.State(), err))
	case m.w.State() == widget.Connected:
		state = okStyle.Render("● connected")
	default:
		state = problemStyle.Render("○ disconnected")
	}
	help := footerStyle.Render("[p] pair  [tab/1-9] interval  [q] quit")
	return state + "  " + help
}

// statusErr prefers the result of the last key action over the widget's own.
func (m model) statusErr() error {
	if m.err != nil {
		return m.err
	}
	return m.w.Err()
}
