package acquisition

// State tracks a session through its life. Within one session transitions
// only move forward: Idle → Connecting → Running → one of the Stopping
// states → Idle.
type State string

const (
	Idle                State = "idle"
	Connecting          State = "connecting"
	Running             State = "running"
	StoppingByUser      State = "stopping_by_user"
	StoppingByThreshold State = "stopping_by_threshold"
	StoppingByError     State = "stopping_by_error"
)
