// Package tui is the terminal kanban board. It renders the repository's
// cached snapshots and routes every mutation through the actions and kanban
// packages; it never decides on its own whether a move is legal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskboard/internal/actions"
	"github.com/aristath/taskboard/internal/clock"
	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/kanban"
	"github.com/aristath/taskboard/internal/repository"
	"github.com/aristath/taskboard/internal/task"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneBoard PaneID = iota
	PaneDetail
)

// Deps are the collaborators the board drives.
type Deps struct {
	Repo       *repository.Repository
	Board      *kanban.Controller
	Dispatcher *actions.Dispatcher
	Reassign   *actions.ReassignmentManager
	Timer      *clock.LiveTimer
	Bus        *events.EventBus
	Logger     *slog.Logger
}

// actionResultMsg reports the outcome of an asynchronous action.
type actionResultMsg struct {
	op  string
	id  string
	err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	ctx         context.Context
	deps        Deps
	board       BoardPaneModel
	detail      DetailPaneModel
	form        ReasonFormModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	mounted     string // Task the live timer is attached to
	status      string
	statusErr   bool
	width       int
	height      int
	quitting    bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := Model{
		ctx:         ctx,
		deps:        deps,
		board:       NewBoardPaneModel(),
		detail:      NewDetailPaneModel(deps.Dispatcher.User()),
		form:        NewReasonFormModel(),
		focusedPane: PaneBoard,
		eventSub:    deps.Bus.SubscribeAll(256),
	}
	m.reload()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The reassignment form is modal.
	if m.form.IsVisible() {
		if _, isKey := msg.(tea.KeyMsg); isKey {
			var cmd tea.Cmd
			var result *FormResult
			m.form, cmd, result = m.form.Update(msg)
			cmds = append(cmds, cmd)
			if result != nil {
				cmds = append(cmds, m.submit(*result))
			}
			return m, tea.Batch(cmds...)
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.form.SetSize(msg.Width, msg.Height)

	case actionResultMsg:
		if msg.err != nil {
			m.setStatus(describe(msg.op, msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("%s %s: ok", msg.op, msg.id), false)
		}
		m.reload()

	case events.TaskUpdatedEvent:
		m.reload()
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TaskMovingEvent, events.TaskRolledBackEvent:
		if rb, ok := msg.(events.TaskRolledBackEvent); ok && rb.Err != nil {
			m.setStatus(describe("move", rb.Err), true)
		}
		m.reload()
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TaskWarningEvent:
		m.setStatus(fmt.Sprintf("%s %s: %s", msg.Op, msg.ID, msg.Reason), true)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TimerTickEvent:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.BoardProgressEvent:
		var cmd tea.Cmd
		m.board, cmd = m.board.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		// Reassignment events are reflected through the task updates.
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case KeyQuit, KeyCtrlC:
		m.quitting = true
		m.deps.Timer.Unmount()
		return tea.Quit
	case KeyTab:
		m.focusedPane = (m.focusedPane + 1) % 2
		m.updateFocusStates()
		return nil
	}

	if m.focusedPane == PaneDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return cmd
	}

	if m.board.Dragging() {
		switch key {
		case KeyDrop, KeyDrag:
			return m.drop()
		case KeyEsc:
			m.deps.Board.CancelDrag()
			m.board.EndDrag()
			m.setStatus("drag cancelled", false)
			return nil
		}
		m.board, _ = m.board.Update(msg)
		return nil
	}

	selected := m.board.Selected()
	switch key {
	case KeyDrag:
		if selected == nil {
			return nil
		}
		if err := m.deps.Board.BeginDrag(selected.ID); err != nil {
			m.setStatus(describe("drag", err), true)
			return nil
		}
		m.board.StartDrag(selected.ID, m.deps.Board.DropTargets()...)
		return nil
	case KeyRefresh:
		return m.run("refresh", "", func(ctx context.Context) error {
			cached := m.deps.Repo.List()
			ids := make([]string, 0, len(cached))
			for _, t := range cached {
				ids = append(ids, t.ID)
			}
			return m.deps.Repo.RefreshAll(ctx, ids)
		})
	case KeyStart, KeyPause, KeyReview, KeyFinalize:
		if selected == nil {
			return nil
		}
		return m.lifecycleAction(key, selected)
	case KeyReassign:
		if selected == nil {
			return nil
		}
		return m.form.Open(FormReassign, selected.ID)
	case KeyResolve:
		if selected == nil {
			return nil
		}
		if !m.deps.Dispatcher.User().Role.CanFinalize() {
			m.setStatus("only a manager or admin can resolve reassignment requests", true)
			return nil
		}
		return m.form.Open(FormResolve, selected.ID)
	}

	m.board, _ = m.board.Update(msg)
	m.syncDetail()
	return nil
}

func (m *Model) lifecycleAction(key string, t *task.Task) tea.Cmd {
	d := m.deps.Dispatcher
	id := t.ID
	switch key {
	case KeyStart:
		if t.Status == task.StatusOnHold {
			return m.run("resume", id, func(ctx context.Context) error { _, err := d.Resume(ctx, id); return err })
		}
		return m.run("start", id, func(ctx context.Context) error { _, err := d.Start(ctx, id); return err })
	case KeyPause:
		return m.run("pause", id, func(ctx context.Context) error { _, err := d.Pause(ctx, id); return err })
	case KeyReview:
		return m.run("request-completion", id, func(ctx context.Context) error { _, err := d.RequestCompletion(ctx, id); return err })
	case KeyFinalize:
		return m.run("complete", id, func(ctx context.Context) error { _, err := d.Complete(ctx, id); return err })
	}
	return nil
}

func (m *Model) drop() tea.Cmd {
	target := m.board.Target()
	m.board.EndDrag()
	return m.run("move", "", func(ctx context.Context) error {
		_, err := m.deps.Board.Drop(ctx, kanban.Container{Column: target})
		return err
	})
}

func (m *Model) submit(r FormResult) tea.Cmd {
	rm := m.deps.Reassign
	switch r.Mode {
	case FormResolve:
		return m.run(r.Decision, r.TaskID, func(ctx context.Context) error {
			pending, err := rm.Pending(ctx, r.TaskID)
			if err != nil {
				return err
			}
			if pending == nil {
				return task.NotFound(r.Decision, r.TaskID)
			}
			if r.Decision == DecisionReject {
				_, err = rm.Reject(ctx, r.TaskID, pending.ID)
			} else {
				_, err = rm.Approve(ctx, r.TaskID, pending.ID, r.NewAssignee)
			}
			return err
		})
	default:
		return m.run("request-reassignment", r.TaskID, func(ctx context.Context) error {
			_, err := rm.Request(ctx, r.TaskID, r.Reason)
			return err
		})
	}
}

// run executes fn off the event loop and reports its outcome.
func (m *Model) run(op, id string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionResultMsg{op: op, id: id, err: fn(ctx)}
	}
}

// reload re-reads the board from the controller and re-attaches the timer.
func (m *Model) reload() {
	m.board.SetColumns(m.deps.Board.Board())
	m.syncDetail()
}

func (m *Model) syncDetail() {
	selected := m.board.Selected()
	if selected == nil {
		if m.mounted != "" {
			m.deps.Timer.Unmount()
			m.mounted = ""
		}
		m.detail.Show(nil, 0)
		return
	}
	if selected.ID != m.mounted {
		if err := m.deps.Timer.Mount(selected); err != nil {
			m.deps.Logger.Warn("live timer not started", "task_id", selected.ID, "error", err)
		}
		m.mounted = selected.ID
	} else {
		_ = m.deps.Timer.Update(selected)
	}
	m.detail.Show(selected, m.deps.Timer.Elapsed())
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

// describe turns an action error into a status line that says why.
func describe(op string, err error) string {
	switch {
	case err == nil:
		return op + ": ok"
	case errors.Is(err, task.ErrInFlight):
		return op + ": still in progress"
	case errors.Is(err, task.ErrAlreadyResolved):
		return op + ": already resolved by someone else, refresh and retry"
	case errors.Is(err, task.ErrForbidden):
		return op + ": not allowed, " + task.ReasonOf(err)
	case errors.Is(err, task.ErrConflict):
		return op + ": state changed, refresh and retry"
	case errors.Is(err, task.ErrValidation), errors.Is(err, task.ErrNotFound):
		return op + ": " + task.ReasonOf(err)
	default:
		return op + ": failed, try again (" + err.Error() + ")"
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.form.IsVisible() {
		return m.form.View()
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.board.View(), m.detail.View())

	status := StyleInfo.Render(m.status)
	if m.statusErr {
		status = StyleWarning.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, status, HelpView(m.board.Dragging()))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	boardWidth := (m.width * 70) / 100
	detailWidth := m.width - boardWidth
	availableHeight := m.height - 2 // status line and help bar

	m.board.SetSize(boardWidth, availableHeight)
	m.detail.SetSize(detailWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.board.SetFocused(m.focusedPane == PaneBoard)
	m.detail.SetFocused(m.focusedPane == PaneDetail)
}
