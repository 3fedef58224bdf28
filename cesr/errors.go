package cesr

import "errors"

// Decode errors. Exported as sentinels so callers can match them with
// errors.Is, mirroring the tagged error enum the original codec exposes.
var (
	ErrShortStream      = errors.New("cesr: stream too short for expected field")
	ErrHeaderMismatch   = errors.New("cesr: header does not match expected identifier")
	ErrVersionMismatch  = errors.New("cesr: genus/version marker does not match")
	ErrUnknownSelector  = errors.New("cesr: unrecognized selector byte")
	ErrUnexpectedData   = errors.New("cesr: trailing or malformed data in stream")
	ErrFieldTooLarge    = errors.New("cesr: field size exceeds the representable width")
)
