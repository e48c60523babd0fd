package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrMalformedReport = errors.New("malformed model score report")
)
