package timer

import "errors"

var (
	// ErrNoProjectSelected is returned by Start when no project was given and
	// none can be taken from the working set.
	ErrNoProjectSelected = errors.New("no project selected")
	// ErrInvalidStartTime is returned by Pause when the active context has no
	// usable start instant. Nothing is written and the context is discarded.
	ErrInvalidStartTime = errors.New("invalid timer start time")
	ErrAlreadyRunning   = errors.New("timer already running")
	ErrNotRunning       = errors.New("timer not running")
	ErrNoActiveTimer    = errors.New("no active timer")
)
