package model

// VerificationStatus is the outcome of a boarding verification.
type VerificationStatus string

// Verification statuses.
const (
	StatusVerified VerificationStatus = "VERIFIED"
	StatusFlagged  VerificationStatus = "FLAGGED"
	StatusRejected VerificationStatus = "REJECTED"
	StatusPending  VerificationStatus = "PENDING"
)

// ConfidenceLevel classifies the combined score.
type ConfidenceLevel string

// Confidence levels.
const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceNone   ConfidenceLevel = "NONE"
)
