package dedup

// Disposition is the transport action applied to a message once it was evaluated.
type Disposition int

const (
	// Drop acknowledges the message.
	Drop Disposition = iota + 1
	// Requeue negatively acknowledges the message.
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Drop:
		return "drop"
	case Requeue:
		return "requeue"
	}
	return "none"
}

// Limits bounds handler retries. MaxAttempts of zero allows unlimited attempts.
type Limits struct {
	MaxAttempts int
}

// State is the recorded handling state of a message key.
type State struct {
	Status   Status
	Attempts int
}

// Action is the outcome of evaluating a message in some State.
type Action struct {
	// Invoked reports whether the handler ran.
	Invoked bool
	// Next is the status after the evaluation.
	Next     Status
	Attempts int
	// Persist reports whether Next and Attempts must be written to the store.
	Persist     bool
	Disposition Disposition
	// Err is the handler error.
	Err error
}

// Handle evaluates the state. invoke is called only when the status is not terminal.
func (s State) Handle(invoke func() error, limits Limits) Action {
	if s.Status.Terminal() {
		return Action{
			Next:        s.Status,
			Attempts:    s.Attempts,
			Disposition: Drop,
		}
	}

	err := invoke()
	a := Action{
		Invoked:  true,
		Attempts: s.Attempts + 1,
		Persist:  true,
		Err:      err,
	}
	switch {
	case err == nil:
		a.Next = Complete
		a.Disposition = Drop
	case limits.MaxAttempts > 0 && a.Attempts >= limits.MaxAttempts:
		a.Next = Failed
		a.Disposition = Drop
	default:
		a.Next = Incomplete
		a.Disposition = Requeue
	}
	return a
}
