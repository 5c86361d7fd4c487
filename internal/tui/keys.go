package tui

// Keybinding constants
const (
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyTab      = "tab"
	KeyLeft     = "left"
	KeyRight    = "right"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyH        = "h"
	KeyJ        = "j"
	KeyK        = "k"
	KeyL        = "l"
	KeyDrag     = " "
	KeyDrop     = "enter"
	KeyEsc      = "esc"
	KeyStart    = "s"
	KeyPause    = "p"
	KeyReview   = "c"
	KeyFinalize = "f"
	KeyReassign = "r"
	KeyResolve  = "a"
	KeyRefresh  = "R"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(dragging bool) string {
	if dragging {
		return StyleHelp.Render("h/l: choose column | enter: drop | esc: cancel")
	}
	return StyleHelp.Render("h/l/j/k: move | space: drag | s/p/c/f: start/pause/review/finalize | r: reassign | a: resolve | tab: detail | R: refresh | q: quit")
}
