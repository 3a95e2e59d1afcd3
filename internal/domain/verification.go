package domain

import "time"

// VerificationOutcome is the decision returned to door staff.
type VerificationOutcome string

const (
	OutcomeValid       VerificationOutcome = "valid"
	OutcomeUsed        VerificationOutcome = "used"
	OutcomeInvalid     VerificationOutcome = "invalid"
	OutcomeUnavailable VerificationOutcome = "unavailable"
)

// UnknownEventID is recorded for scans of codes that match no ticket.
const UnknownEventID = "unknown"

// VerificationRecord is an append-only audit entry for one scan attempt.
type VerificationRecord struct {
	ID         string
	EventID    string
	Code       string
	Outcome    VerificationOutcome
	Reason     string
	VerifiedBy string
	VerifiedAt time.Time
}
