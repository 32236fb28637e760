package downloads

import "fmt"

// Kind is the phase of a download.
type Kind int

const (
	Idle Kind = iota
	InProgress
	Success
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case InProgress:
		return "in-progress"
	case Success:
		return "success"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the transient, in-memory status of one content id. Percent is
// meaningful for InProgress and Message for Failed.
type State struct {
	Kind    Kind
	Percent int
	Message string
}

func (s State) String() string {
	switch s.Kind {
	case InProgress:
		return fmt.Sprintf("in-progress(%d%%)", s.Percent)
	case Failed:
		return fmt.Sprintf("error(%s)", s.Message)
	default:
		return s.Kind.String()
	}
}

// Terminal reports whether s ends a download attempt.
func (s State) Terminal() bool {
	return s.Kind == Success || s.Kind == Failed
}

func idle() State                { return State{Kind: Idle} }
func progress(percent int) State { return State{Kind: InProgress, Percent: percent} }
func success() State             { return State{Kind: Success} }
func failed(msg string) State    { return State{Kind: Failed, Message: msg} }

// Event is one published state transition.
type Event struct {
	ContentID string
	State     State
}
