package inference

import "errors"

// Sentinel kinds for inference errors.
var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrUnknownModel   = errors.New("unknown model")
	ErrUpstream       = errors.New("inference upstream failed")
)
