package vfs

// StoreError represents a domain error from virtual filesystem operations.
//
// These are business logic errors (file not found, quota exceeded, bad
// credentials, etc.) as opposed to infrastructure errors (disk failure,
// network error). Transport adapters translate StoreError codes into
// client-facing responses; any other error is treated as internal and must
// not leak detail across the trust boundary.
//
// All domain failures share this one type and are distinguished by Code and
// Message rather than by separate error types. They are recoverable by the
// caller and are never retried internally.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested file, user, or filesystem doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrInvalidPath indicates a malformed path (empty file name, `.` or `..`
	// segments, trailing slash on a file path)
	ErrInvalidPath

	// ErrQuotaExceeded indicates a hard limit was hit
	// (max_files, max_storage, max_depth, or max_path)
	ErrQuotaExceeded

	// ErrNotAuthorized indicates a non-admin attempted an admin-only
	// operation, or the caller lacks the required read/write grant
	ErrNotAuthorized

	// ErrAccessDenied indicates a union-mount conflict: the target exists
	// only on a read-merged secondary filesystem, or the view composition
	// no longer matches the caller's assignments
	ErrAccessDenied

	// ErrAlreadyExists indicates a duplicate user name
	ErrAlreadyExists

	// ErrInvalidToken indicates a session or filesystem-handle credential
	// failed verification or decoding
	ErrInvalidToken

	// ErrExpired indicates a credential verified but its expiry has passed
	ErrExpired

	// ErrAuthFailed indicates a failed login (unknown user or bad password)
	ErrAuthFailed

	// ErrInvalidArgument indicates invalid operation parameters
	// (blank filesystem name, negative limits, self-deletion)
	ErrInvalidArgument

	// ErrCollision indicates the identifier generator produced duplicates
	// past the retry bound; it signals a broken or pathological generator
	ErrCollision
)

// errorf builds a StoreError with the given code and message.
func errorf(code ErrorCode, message string) *StoreError {
	return &StoreError{Code: code, Message: message}
}

// pathError builds a StoreError that carries the offending path.
func pathError(code ErrorCode, message, path string) *StoreError {
	return &StoreError{Code: code, Message: message, Path: path}
}

// IsCode reports whether err is a StoreError with the given code.
//
// Transport adapters and tests use this instead of string matching.
func IsCode(err error, code ErrorCode) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == code
}
