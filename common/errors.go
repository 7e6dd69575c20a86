package common

import "fmt"

type ErrorCode int

const (
	// NoFreeFrameError indicates that every frame in the buffer pool is pinned and the replacer could not supply a
	// victim. The caller may retry after unpinning something.
	NoFreeFrameError ErrorCode = iota
	// StorageIOError indicates that the storage backend failed to read or write a page.
	StorageIOError
	// InvalidConfigError indicates a configuration value that cannot be used to build a cache.
	InvalidConfigError
	// ClosedError indicates use of a component after it has been shut down.
	ClosedError
	// InvalidPageIDError indicates a request for a page id that can never be resident.
	InvalidPageIDError
)

func (ec ErrorCode) String() string {
	switch ec {
	case NoFreeFrameError:
		return "NoFreeFrameError"
	case StorageIOError:
		return "StorageIOError"
	case InvalidConfigError:
		return "InvalidConfigError"
	case ClosedError:
		return "ClosedError"
	case InvalidPageIDError:
		return "InvalidPageIDError"
	}
	return "unknown"
}

// Error is the custom error type for the page cache. It wraps a specific ErrorCode with a detailed message.
//
// Two Errors match under errors.Is when their codes match, so callers can test against the sentinels below
// regardless of the message attached at the failure site.
type Error struct {
	Code      ErrorCode
	ErrString string
}

func (e Error) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// Is reports whether target is an Error carrying the same code.
func (e Error) Is(target error) bool {
	switch t := target.(type) {
	case Error:
		return t.Code == e.Code
	case *Error:
		return t != nil && t.Code == e.Code
	}
	return false
}

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) Error {
	return Error{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

var (
	// ErrNoFreeFrame is returned by the buffer pool when no frame can be obtained.
	ErrNoFreeFrame = Error{Code: NoFreeFrameError, ErrString: "all frames are pinned"}
	// ErrStorageIO wraps every storage failure surfaced by the buffer pool; the backend's own error is wrapped too.
	ErrStorageIO = Error{Code: StorageIOError, ErrString: "storage i/o failed"}
	// ErrInvalidConfig is the sentinel for configuration validation failures.
	ErrInvalidConfig = Error{Code: InvalidConfigError, ErrString: "invalid configuration"}
	// ErrClosed is returned when a closed component is used.
	ErrClosed = Error{Code: ClosedError, ErrString: "component is closed"}
	// ErrInvalidPageID is returned when fetching a nil page id.
	ErrInvalidPageID = Error{Code: InvalidPageIDError, ErrString: "invalid page id"}
)
