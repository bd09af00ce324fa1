// Package ui renders the live board view: the local task cache plus the
// presence roster and per-task editing indicators coming off the realtime
// channel.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avelar/taskhub/internal/coordinator"
	"github.com/avelar/taskhub/internal/editing"
	"github.com/avelar/taskhub/internal/presence"
	"github.com/avelar/taskhub/pkg/models"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	editingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	rosterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	priorityColors = map[models.Priority]lipgloss.Style{
		models.PriorityUrgent: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.PriorityLow:    lipgloss.NewStyle().Faint(true),
	}
)

type tickMsg time.Time

type toggleDoneMsg struct{ err error }

type WatchModel struct {
	coord   *coordinator.Coordinator
	tracker *presence.Tracker
	editors *editing.Broadcaster

	tasks    []*models.Task
	cursor   int
	lastErr  string
	quitting bool
}

func NewWatchModel(coord *coordinator.Coordinator, tracker *presence.Tracker, editors *editing.Broadcaster) WatchModel {
	return WatchModel{
		coord:   coord,
		tracker: tracker,
		editors: editors,
		tasks:   coord.Cache().List(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m WatchModel) Init() tea.Cmd {
	return tick()
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tasks = m.coord.Cache().List()
		if m.cursor >= len(m.tasks) && m.cursor > 0 {
			m.cursor = len(m.tasks) - 1
		}
		return m, tick()

	case toggleDoneMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
		}
		m.tasks = m.coord.Cache().List()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}

		case " ", "x":
			if m.cursor < len(m.tasks) {
				t := m.tasks[m.cursor]
				coord := m.coord
				id, completed := t.ID, !t.Completed
				return m, func() tea.Msg {
					_, err := coord.ToggleCompletion(context.Background(), id, completed)
					return toggleDoneMsg{err: err}
				}
			}
		}
	}

	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render("taskhub"))
	s.WriteString("\n\n")

	if len(m.tasks) == 0 {
		s.WriteString("  (no tasks yet)\n")
	}
	for i, t := range m.tasks {
		mark := "[ ]"
		if t.Completed {
			mark = "[x]"
		}

		line := fmt.Sprintf("%s %s", mark, t.Text)
		if t.AssignedTo != nil {
			line += fmt.Sprintf(" @%s", *t.AssignedTo)
		}
		if t.DueDate != nil {
			line += fmt.Sprintf(" (%s)", *t.DueDate)
		}

		style := priorityColors[t.Priority]
		if t.Completed {
			style = doneStyle
		}
		if i == m.cursor {
			style = selectedStyle
			line = "> " + line
		} else {
			line = "  " + line
		}
		s.WriteString(style.Render(line))

		if editors := m.editors.Editors(t.ID); len(editors) > 0 {
			names := make([]string, 0, len(editors))
			for _, e := range editors {
				if e.Field != "" {
					names = append(names, fmt.Sprintf("%s:%s", e.Name, e.Field))
				} else {
					names = append(names, e.Name)
				}
			}
			s.WriteString(editingStyle.Render(fmt.Sprintf("  ✎ %s", strings.Join(names, ", "))))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	online := m.tracker.Others()
	if len(online) == 0 {
		s.WriteString(rosterStyle.Render("nobody else online"))
	} else {
		names := make([]string, 0, len(online))
		for _, p := range online {
			if p.Location != "" {
				names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.Location))
			} else {
				names = append(names, p.Name)
			}
		}
		s.WriteString(rosterStyle.Render("online: " + strings.Join(names, ", ")))
	}
	s.WriteString("\n")

	if m.lastErr != "" {
		s.WriteString(errStyle.Render("! " + m.lastErr))
		s.WriteString("\n")
	}

	s.WriteString("\n(j/k to move, space to toggle, q to quit)\n")
	return s.String()
}

// RunWatch starts the live board view and blocks until the user quits.
func RunWatch(coord *coordinator.Coordinator, tracker *presence.Tracker, editors *editing.Broadcaster) error {
	p := tea.NewProgram(NewWatchModel(coord, tracker, editors))
	_, err := p.Run()
	return err
}
