package manager

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned when a required backend cannot be reached,
// or when every backend of a degradable read has failed.
var ErrBackendUnavailable = errors.New("memory backend unavailable")

// PartialWriteError reports that a memory landed in one store but not the
// other. The write is not rolled back; the id can be repaired later with
// ReindexFact or a reconciliation sweep.
type PartialWriteError struct {
	ID  string
	Err error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("memory %s persisted partially: %v", e.ID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
