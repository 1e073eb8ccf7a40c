package result

import "github.com/leapstack-labs/codecheck/internal/query"

// Renderer holds the result area's state machine. It only applies outcomes
// of the latest begun request. Not safe for concurrent use; drive it from
// the UI goroutine.
type Renderer struct {
	pending uint64
	view    ViewState
}

// NewRenderer creates a renderer in the Hidden state.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// View returns the current view state.
func (r *Renderer) View() ViewState {
	return r.view
}

// Begin hides the current result and waits for request id.
func (r *Renderer) Begin(id uint64) {
	r.pending = id
	r.view = ViewState{State: Hidden}
}

// Accept applies out when id is the request passed to the last Begin.
// It returns false, leaving the view untouched, for superseded requests.
func (r *Renderer) Accept(id uint64, out query.Outcome) bool {
	if id == 0 || id != r.pending {
		return false
	}
	r.pending = 0
	r.view = Render(out)
	return true
}

// Invalidate returns to Hidden and drops any pending request. Call it
// whenever the selected line or product changes.
func (r *Renderer) Invalidate() {
	r.pending = 0
	r.view = ViewState{State: Hidden}
}

// DismissAlert clears the alert flag once the dialog was acknowledged.
// The error banner stays.
func (r *Renderer) DismissAlert() {
	r.view.Alert = false
}
