package reactord

import "errors"

// Sentinel errors returned by the core subsystems. Callers compare with
// errors.Is; wrapping at call boundaries uses fmt.Errorf("...: %w", err).
var (
	// ErrAlreadyRegistered is passed to the loop's fatal handler when Register is called for an fd already known to the loop.
	ErrAlreadyRegistered = errors.New("reactord: fd already registered")

	// ErrResourceNotFound is returned by ResourceCache.Get on miss, open/stat/mmap failure, or zero-length file.
	ErrResourceNotFound = errors.New("reactord: resource not found")

	// ErrLogNotRunning is returned by AsyncLog.Append when the sink is not running.
	ErrLogNotRunning = errors.New("reactord: async log not running")

	// ErrFramingLineTooLong marks a request/header line exceeding the configured max length.
	ErrFramingLineTooLong = errors.New("reactord: request line exceeds maximum length")

	// ErrFramingBadMethod marks a request using a method other than GET/POST.
	ErrFramingBadMethod = errors.New("reactord: unsupported method")

	// ErrFramingMalformed marks a structurally invalid request line or header.
	ErrFramingMalformed = errors.New("reactord: malformed request")
)
