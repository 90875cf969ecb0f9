package ua

// StatusCode is a stable OPC UA result code. Values below follow the
// real OPC UA numeric layout (top bit set marks Bad, bits 30/29 mark
// severity) only loosely - what matters for this core is that each
// distinct named failure below is a distinct, comparable value.
type StatusCode uint32

const (
	StatusOK StatusCode = 0

	BadNodeIdInvalid        StatusCode = 0x80330000
	BadNodeIdUnknown        StatusCode = 0x80340000
	BadArgumentsMissing     StatusCode = 0x80350000
	BadTypeMismatch         StatusCode = 0x80740000
	BadIndexRangeInvalid    StatusCode = 0x80360000
	BadOutOfMemory          StatusCode = 0x80030000
	BadSecureChannelIdInvalid StatusCode = 0x80300000
	BadSessionIdInvalid     StatusCode = 0x80250000
	BadSessionNotActivated  StatusCode = 0x80260000
	BadIdentityTokenInvalid StatusCode = 0x80200000
	BadUserAccessDenied     StatusCode = 0x801F0000
	BadTcpEndpointUrlInvalid StatusCode = 0x80780000
	BadNotFound             StatusCode = 0x803E0000
	BadInternalError        StatusCode = 0x80020000
	BadDuplicateId          StatusCode = 0x80480000
	BadRequestTypeInvalid   StatusCode = 0x80B60000
	BadInvalidArgument      StatusCode = 0x80AB0000
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "Good"
	case BadNodeIdInvalid:
		return "BadNodeIdInvalid"
	case BadNodeIdUnknown:
		return "BadNodeIdUnknown"
	case BadArgumentsMissing:
		return "BadArgumentsMissing"
	case BadTypeMismatch:
		return "BadTypeMismatch"
	case BadIndexRangeInvalid:
		return "BadIndexRangeInvalid"
	case BadOutOfMemory:
		return "BadOutOfMemory"
	case BadSecureChannelIdInvalid:
		return "BadSecureChannelIdInvalid"
	case BadSessionIdInvalid:
		return "BadSessionIdInvalid"
	case BadSessionNotActivated:
		return "BadSessionNotActivated"
	case BadIdentityTokenInvalid:
		return "BadIdentityTokenInvalid"
	case BadUserAccessDenied:
		return "BadUserAccessDenied"
	case BadTcpEndpointUrlInvalid:
		return "BadTcpEndpointUrlInvalid"
	case BadNotFound:
		return "BadNotFound"
	case BadInternalError:
		return "BadInternalError"
	case BadDuplicateId:
		return "BadDuplicateId"
	case BadRequestTypeInvalid:
		return "BadRequestTypeInvalid"
	case BadInvalidArgument:
		return "BadInvalidArgument"
	default:
		return "Unknown"
	}
}

// IsBad reports whether the code represents a failure.
func (s StatusCode) IsBad() bool { return s != StatusOK }

// StatusError adapts a StatusCode to the error interface so it can be
// wrapped with github.com/pkg/errors at internal call sites while still
// carrying the original code back to the dispatcher boundary.
type StatusError struct {
	Code StatusCode
}

func (e *StatusError) Error() string { return e.Code.String() }

// NewStatusError constructs a StatusError, the standard way service
// handlers and managers signal a specific Bad* outcome.
func NewStatusError(code StatusCode) error {
	return &StatusError{Code: code}
}

// CodeOf extracts the StatusCode from an error produced anywhere in this
// core, defaulting to BadInternalError for anything else.
func CodeOf(err error) StatusCode {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	for {
		if s, ok := err.(*StatusError); ok {
			se = s
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
		if err == nil {
			break
		}
	}
	if se != nil {
		return se.Code
	}
	return BadInternalError
}
