package protocol

const (
	// Protocol/transport validation.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrBadVersion  = "E_BAD_VERSION"
	ErrUnknownType = "E_UNKNOWN_TYPE"

	// Target routing.
	ErrNotFound = "E_NOT_FOUND"

	// Resource limits. Reported as a warning alongside clamped results;
	// only surfaces as an error reply when a request names no usable target.
	ErrCapacity = "E_CAPACITY"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:  {},
	ErrBadVersion:  {},
	ErrUnknownType: {},
	ErrNotFound:    {},
	ErrCapacity:    {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
