package runtime

import "fmt"

// State is the runtime loop state.
type State int32

const (
	// Idle waits on the mailbox and offload completions.
	Idle State = iota
	// Running starts or resumes tasks.
	Running
	// Ticking runs collector safepoints and engine events.
	Ticking
	// Draining processes what is left after shutdown was requested.
	Draining
	// Stopped is terminal; the engine has been torn down.
	Stopped
)

var stateNames = [...]string{
	Idle:     "idle",
	Running:  "running",
	Ticking:  "ticking",
	Draining: "draining",
	Stopped:  "stopped",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
