package coordinator

import (
	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
)

var (
	// ErrGuarded is returned to foreground fetches skipped because a local save is still protected.
	ErrGuarded = errors.StaleError("fetch skipped: a recent local save is protected").Build()

	// ErrDiscarded is returned to foreground fetches whose result lost the race against a local save.
	ErrDiscarded = errors.StaleError("fetched document discarded: local state changed during fetch").Build()

	// ErrUnsentChanges is returned to foreground fetches while an unsent local save is queued.
	ErrUnsentChanges = errors.StaleError("fetched document discarded: local changes are waiting to be sent").Build()
)
