package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/kanban"
	"github.com/aristath/taskboard/internal/task"
)

// BoardPaneModel renders the kanban columns and tracks the cursor.
type BoardPaneModel struct {
	columns  []kanban.ColumnView
	col      int   // Cursor column
	rows     []int // Remembered cursor card per column
	dragging string
	target   int // Drop target column while dragging
	legal    map[kanban.Column]bool
	progress events.BoardProgressEvent
	width    int
	height   int
	focused  bool
}

// NewBoardPaneModel creates an empty board pane.
func NewBoardPaneModel() BoardPaneModel {
	views := make([]kanban.ColumnView, 0, len(kanban.Columns()))
	for _, col := range kanban.Columns() {
		views = append(views, kanban.ColumnView{Column: col})
	}
	return BoardPaneModel{columns: views, rows: make([]int, len(views)), focused: true}
}

// SetColumns replaces the rendered cards and keeps the cursor on the same
// card when it still exists.
func (m *BoardPaneModel) SetColumns(views []kanban.ColumnView) {
	selected := m.Selected()
	m.columns = views
	if len(m.rows) != len(views) {
		m.rows = make([]int, len(views))
	}
	if selected != nil {
		for ci, v := range views {
			for ri, c := range v.Cards {
				if c.ID == selected.ID {
					m.col, m.rows[ci] = ci, ri
					m.clamp()
					return
				}
			}
		}
	}
	m.clamp()
}

// Update handles cursor keys and progress events.
func (m BoardPaneModel) Update(msg tea.Msg) (BoardPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyH, KeyLeft:
			if m.dragging != "" {
				m.target = max(0, m.target-1)
			} else if m.col > 0 {
				m.col--
				m.clamp()
			}
		case KeyL, KeyRight:
			if m.dragging != "" {
				m.target = min(len(m.columns)-1, m.target+1)
			} else if m.col < len(m.columns)-1 {
				m.col++
				m.clamp()
			}
		case KeyJ, KeyDown:
			if m.dragging == "" && m.rows[m.col] < len(m.columns[m.col].Cards)-1 {
				m.rows[m.col]++
			}
		case KeyK, KeyUp:
			if m.dragging == "" && m.rows[m.col] > 0 {
				m.rows[m.col]--
			}
		}

	case events.BoardProgressEvent:
		m.progress = msg
	}
	return m, nil
}

// Selected returns the card under the cursor.
func (m BoardPaneModel) Selected() *task.Task {
	if m.col < 0 || m.col >= len(m.columns) {
		return nil
	}
	cards := m.columns[m.col].Cards
	row := m.rows[m.col]
	if row < 0 || row >= len(cards) {
		return nil
	}
	return cards[row]
}

// StartDrag marks id as picked up with the cursor column as first target.
// Columns in legal are highlighted as places the card may land.
func (m *BoardPaneModel) StartDrag(id string, legal ...kanban.Column) {
	m.dragging = id
	m.target = m.col
	m.legal = make(map[kanban.Column]bool, len(legal))
	for _, c := range legal {
		m.legal[c] = true
	}
}

// EndDrag clears the drag indicator.
func (m *BoardPaneModel) EndDrag() {
	m.dragging = ""
	m.legal = nil
}

// Legal reports whether col was offered as a drop target for the current drag.
func (m BoardPaneModel) Legal(col kanban.Column) bool {
	return m.legal[col]
}

// Target returns the column the dragged card would be dropped into.
func (m BoardPaneModel) Target() kanban.Column {
	return m.columns[m.target].Column
}

// Dragging reports whether a card is picked up.
func (m BoardPaneModel) Dragging() bool {
	return m.dragging != ""
}

// View renders the board pane.
func (m BoardPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	colWidth := max(12, (m.width-2)/len(m.columns)-2)
	rendered := make([]string, 0, len(m.columns))
	for i, v := range m.columns {
		rendered = append(rendered, m.renderColumn(i, v, colWidth))
	}
	content := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	content = lipgloss.JoinVertical(lipgloss.Left, content, m.renderProgress())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m BoardPaneModel) renderColumn(i int, v kanban.ColumnView, width int) string {
	var b strings.Builder

	label := fmt.Sprintf("%s (%d)", v.Column, len(v.Cards))
	if m.dragging != "" && m.legal[v.Column] {
		label = "+ " + label
	}
	title := StyleTitle.Render(label)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n")

	for ri, c := range v.Cards {
		line := fmt.Sprintf("%s %s", cardIcon(c), truncate(c.Title, width-3))
		switch {
		case c.ID == m.dragging:
			line = StyleStatusRunning.Render("» " + truncate(c.Title, width-3))
		case i == m.col && ri == m.rows[i] && m.dragging == "":
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	style := lipgloss.NewStyle().Width(width).Height(m.height - 6)
	if m.dragging != "" && i == m.target {
		style = StyleDropTarget.Width(width - 2).Height(m.height - 8)
	}
	return style.Render(b.String())
}

func (m BoardPaneModel) renderProgress() string {
	p := m.progress
	if p.Total == 0 {
		return StyleStatusPending.Render("No tasks")
	}
	barWidth := min(m.width-20, 40)
	completed := (p.Completed * barWidth) / p.Total
	review := (p.Review * barWidth) / p.Total
	active := ((p.InProgress + p.OnHold) * barWidth) / p.Total
	rest := barWidth - completed - review - active

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completed)))
	bar += StyleStatusReview.Render(strings.Repeat("~", max(0, review)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, active)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, rest)))
	return fmt.Sprintf("[%s]  %d/%d done", bar, p.Completed, p.Total)
}

// SetSize updates the pane dimensions.
func (m *BoardPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *BoardPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func (m *BoardPaneModel) clamp() {
	if m.col >= len(m.columns) {
		m.col = len(m.columns) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	for i, v := range m.columns {
		m.rows[i] = max(0, min(m.rows[i], len(v.Cards)-1))
	}
}

func cardIcon(t *task.Task) string {
	switch {
	case t.Lock.Pending():
		return StyleLocked.Render("⚿")
	case t.Timer.Running:
		return StyleStatusRunning.Render("●")
	case t.Status == task.StatusCompleted:
		return StyleStatusComplete.Render("✓")
	default:
		return StatusStyle(t.Status).Render("○")
	}
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
