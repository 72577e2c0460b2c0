package experiment

import "errors"

var (
	ErrNotFound        = errors.New("experiment: not found")
	ErrNotDefined      = errors.New("experiment: start rejected, not in DEFINED state")
	ErrAlreadyTerminal = errors.New("experiment: stop rejected, already in a terminal state")
	ErrUnknownKind     = errors.New("experiment: unknown capability kind")
)
