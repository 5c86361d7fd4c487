package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// FormMode selects which reassignment form is shown.
type FormMode int

const (
	FormReassign FormMode = iota // Employee asks for a hand-off
	FormResolve                  // Manager approves or rejects
)

// Decisions offered by the resolve form.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// FormResult is the submitted content of a reassignment form.
type FormResult struct {
	Mode        FormMode
	TaskID      string
	Reason      string
	Decision    string
	NewAssignee string
}

// ReasonFormModel wraps the huh form used for the reassignment workflow.
type ReasonFormModel struct {
	form    *huh.Form
	mode    FormMode
	taskID  string
	visible bool
	width   int
	height  int

	// Form field bindings
	reason      string
	decision    string
	newAssignee string
}

// NewReasonFormModel creates a hidden form.
func NewReasonFormModel() ReasonFormModel {
	return ReasonFormModel{}
}

// Open shows a fresh form of mode for taskID.
func (m *ReasonFormModel) Open(mode FormMode, taskID string) tea.Cmd {
	m.mode = mode
	m.taskID = taskID
	m.reason = ""
	m.decision = DecisionApprove
	m.newAssignee = ""
	m.visible = true
	m.buildForm()
	return m.form.Init()
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(what + " is required")
		}
		return nil
	}
}

func (m *ReasonFormModel) buildForm() {
	switch m.mode {
	case FormResolve:
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Key("decision").
					Title("Reassignment request").
					Options(
						huh.NewOption("Approve and reassign", DecisionApprove),
						huh.NewOption("Reject", DecisionReject),
					).
					Value(&m.decision),
			),
			huh.NewGroup(
				huh.NewInput().
					Key("newAssignee").
					Title("New assignee user id").
					Value(&m.newAssignee).
					Validate(required("a new assignee")),
			).WithHideFunc(func() bool { return m.decision != DecisionApprove }),
		)
	default:
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewText().
					Key("reason").
					Title("Why should this task be reassigned?").
					Value(&m.reason).
					Validate(required("a reason")),
			),
		)
	}
	if m.width > 0 {
		m.form.WithWidth(m.width - 8)
	}
}

// Update forwards msg to the form. It returns a result once the form is
// submitted; esc closes the form without one.
func (m ReasonFormModel) Update(msg tea.Msg) (ReasonFormModel, tea.Cmd, *FormResult) {
	if !m.visible {
		return m, nil, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		return m, nil, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.visible = false
		return m, cmd, &FormResult{
			Mode:        m.mode,
			TaskID:      m.taskID,
			Reason:      strings.TrimSpace(m.reason),
			Decision:    m.decision,
			NewAssignee: strings.TrimSpace(m.newAssignee),
		}
	case huh.StateAborted:
		m.visible = false
	}
	return m, cmd, nil
}

// View renders the form.
func (m ReasonFormModel) View() string {
	if !m.visible {
		return ""
	}
	title := "Request reassignment"
	if m.mode == FormResolve {
		title = "Resolve reassignment"
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render(title + "  " + m.taskID)

	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Render(m.form.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

// SetSize updates the dimensions of the form.
func (m *ReasonFormModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// IsVisible returns whether the form is currently shown.
func (m ReasonFormModel) IsVisible() bool {
	return m.visible
}
