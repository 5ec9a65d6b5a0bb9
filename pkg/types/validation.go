package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization,
// join and violation events validate IDs on every delivery
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID reports whether an external identifier (student or test) is
// well-formed: non-empty, alphanumeric with dash/underscore, at most 64 chars.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole reports whether a connection role is recognized by the gateway.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleAdmin
}

// IsValidViolationType reports whether the type is one the detector emits.
func IsValidViolationType(t string) bool {
	switch t {
	case ViolationNoFace, ViolationMultipleFaces, ViolationPhoneDetected,
		ViolationLookingDown, ViolationVideoBlur, ViolationLoudNoise,
		ViolationVoiceDetected, ViolationMicrophoneSilent:
		return true
	}
	return false
}

// IsValidSeverity reports whether the severity is a recognized level.
func IsValidSeverity(s string) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Validate ensures a join payload carries well-formed identity fields
func (p *JoinPayload) Validate() error {
	if !IsValidID(p.StudentID) {
		return ErrInvalidStudentID
	}
	if !IsValidID(p.TestID) {
		return ErrInvalidTestID
	}
	return nil
}

// Validate ensures a violation record is persistable
// FUNCTIONAL DISCOVERY: Validation happens before the store is touched,
// a malformed record must never consume a write slot
func (r *ViolationRecord) Validate() error {
	if !IsValidID(r.StudentID) {
		return ErrInvalidStudentID
	}
	if !IsValidID(r.TestID) {
		return ErrInvalidTestID
	}
	if !IsValidViolationType(r.Type) {
		return ErrInvalidViolationType
	}
	if !IsValidSeverity(r.Severity) {
		return ErrInvalidSeverity
	}
	return nil
}
