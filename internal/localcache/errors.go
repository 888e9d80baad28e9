package localcache

import (
	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
)

var (
	// ErrQuotaExceeded is returned by Set when the write would exceed the configured size.
	ErrQuotaExceeded = errors.CacheError("local cache quota exceeded").Build()

	// ErrOpenFailed indicates the sqlite database could not be opened.
	ErrOpenFailed = errors.CacheError("could not open local cache database").Fatal().Build()
)
