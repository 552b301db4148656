package state

import (
	"fmt"
	"time"
)

// VersionConflictError is returned by Save when the persisted serial has
// advanced past the serial the caller loaded. The caller must reload,
// recompute and retry; the store never merges conflicting writes.
type VersionConflictError struct {
	Expected int
	Actual   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("state serial conflict: expected %d, backend has %d (reload and retry)", e.Expected, e.Actual)
}

// LockHeldError is returned when the state lock is already held by another
// operation.
type LockHeldError struct {
	ID        string
	Holder    string
	Operation string
	Age       time.Duration
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("state is locked by %s (operation %q, held for %s, lock id %s)",
		e.Holder, e.Operation, e.Age.Round(time.Second), e.ID)
}
