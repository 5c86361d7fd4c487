package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/task"
)

// DetailPaneModel shows the selected task in a scrollable viewport.
type DetailPaneModel struct {
	task     *task.Task
	user     task.User
	elapsed  int64
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewDetailPaneModel creates a detail pane rendering for user.
func NewDetailPaneModel(user task.User) DetailPaneModel {
	return DetailPaneModel{user: user, viewport: viewport.New(0, 0)}
}

// Update handles scrolling and timer ticks.
func (m DetailPaneModel) Update(msg tea.Msg) (DetailPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focused {
			m.viewport, cmd = m.viewport.Update(msg)
		}
	case events.TimerTickEvent:
		if m.task != nil && m.task.HasID(msg.ID) {
			m.elapsed = msg.ElapsedSeconds
			m.refresh()
		}
	}
	return m, cmd
}

// Show renders t with the given elapsed seconds. A nil task clears the pane.
func (m *DetailPaneModel) Show(t *task.Task, elapsed int64) {
	m.task = t
	m.elapsed = elapsed
	m.refresh()
}

func (m *DetailPaneModel) refresh() {
	if m.task == nil {
		m.viewport.SetContent(StyleStatusPending.Render("No task selected"))
		return
	}
	m.viewport.SetContent(renderDetail(m.task, m.user, m.elapsed))
}

func renderDetail(t *task.Task, user task.User, elapsed int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", StyleTitle.Render(t.Title))
	fmt.Fprintf(&b, "ID:      %s\n", t.ID)
	if t.ProjectID != "" {
		fmt.Fprintf(&b, "Project: %s\n", t.ProjectID)
	}
	fmt.Fprintf(&b, "Status:  %s\n", StatusStyle(t.Status).Render(t.Status.String()))
	fmt.Fprintf(&b, "Time:    %s", formatSeconds(elapsed))
	if t.Timer.Running {
		b.WriteString(StyleStatusRunning.Render("  running"))
	}
	b.WriteString("\n")

	if reason, readOnly := lifecycle.ReadOnlyReason(t, user); readOnly {
		fmt.Fprintf(&b, "%s\n", StyleLocked.Render("Read-only: "+reason))
	}
	if t.Lock.Pending() {
		who := t.Lock.RequesterName
		if who == "" {
			who = "an assignee"
		}
		fmt.Fprintf(&b, "%s\n", StyleLocked.Render("Reassignment requested by "+who))
	} else if t.Lock.RequestStatus != "" {
		fmt.Fprintf(&b, "Last reassignment: %s\n", strings.ToLower(string(t.Lock.RequestStatus)))
	}

	b.WriteString("\nAssignees:\n")
	for _, a := range t.AssignedUsers {
		suffix := ""
		if a.ReadOnly {
			suffix = " (read-only)"
		}
		fmt.Fprintf(&b, "  - %s%s\n", a.UserID, suffix)
	}

	if len(t.Checklist) > 0 {
		b.WriteString("\nChecklist:\n")
		for _, item := range t.Checklist {
			mark := "[ ]"
			if item.Status == task.ChecklistCompleted {
				mark = "[x]"
			}
			due := ""
			if item.DueDate != nil {
				due = "  due " + item.DueDate.Format(time.DateOnly)
			}
			fmt.Fprintf(&b, "  %s %s%s\n", mark, item.Title, due)
		}
	}
	return b.String()
}

func formatSeconds(s int64) string {
	d := time.Duration(s) * time.Second
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// View renders the detail pane.
func (m DetailPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(m.viewport.View())
}

// SetSize updates the pane dimensions.
func (m *DetailPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-2)
}

// SetFocused updates the focus state.
func (m *DetailPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
