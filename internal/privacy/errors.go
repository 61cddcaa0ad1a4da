package privacy

import "errors"

var (
	// ErrValidation indicates malformed request input.
	ErrValidation = errors.New("invalid request")

	// ErrPrivacy indicates an internal tokenization or reconstruction
	// failure.
	ErrPrivacy = errors.New("privacy operation failed")
)
