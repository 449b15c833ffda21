package gamedb

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an object or message does not exist.
var ErrNotFound = errors.New("not found")

// InsufficientError reports a resource shortfall.
type InsufficientError struct {
	Resource string // "money" or a material type
	Need     int64
	Have     int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: need %d, have %d", e.Resource, e.Need, e.Have)
}

// Shortfall is how much more is needed.
func (e *InsufficientError) Shortfall() int64 {
	return e.Need - e.Have
}
