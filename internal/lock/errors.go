package lock

import (
	stderrors "errors"
	"fmt"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// ErrLocked is returned by Acquire when the lease is held by someone else.
// This is a sentinel error that can be checked with errors.Is().
var ErrLocked = stderrors.New("lease is held by another deployment")

// lockedError builds the structured LOCK error naming the holder.
func lockedError(key string, holder *LockInfo) *errors.Error {
	who := "unknown"
	if holder != nil {
		who = holder.String()
	}
	return errors.WrapWithCode(ErrLocked, errors.ErrLock,
		fmt.Sprintf("Another deployment to %s is in progress", key),
		fmt.Sprintf("Held by %s. Wait for it to finish and retry.", who))
}
