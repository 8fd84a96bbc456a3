package memory

import "errors"

var (
	// ErrNotInitialized is returned by every operation before a successful Initialize.
	ErrNotInitialized = errors.New("memory: not initialized")

	// ErrInvalidTier is returned for a tier outside {crew, session, vector}.
	ErrInvalidTier = errors.New("memory: invalid tier")

	// ErrBackendUnavailable wraps vector client construction or collection fetch failures.
	ErrBackendUnavailable = errors.New("memory: vector backend unavailable")

	// ErrTierUnavailable is returned when the targeted tier did not come up
	// or is disabled by configuration.
	ErrTierUnavailable = errors.New("memory: tier unavailable")

	// ErrPersistence wraps file read/write failures for a crew record.
	ErrPersistence = errors.New("memory: persistence failure")

	// ErrMalformedRecord marks a crew file that could not be parsed.
	ErrMalformedRecord = errors.New("memory: malformed crew record")

	// ErrInvalidCrew is returned for crew names that cannot name a file.
	ErrInvalidCrew = errors.New("memory: invalid crew name")

	// ErrEmptyQuery is returned by vector reads without a query.
	ErrEmptyQuery = errors.New("memory: empty query")

	// ErrNotFound is returned by reads when the crew has no data in the tier.
	ErrNotFound = errors.New("memory: no data")
)
