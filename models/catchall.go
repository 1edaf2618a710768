package models

import "time"

// CatchAllDomain is the deny-list of domains known to accept mail for
// any local-part. Its presence short-circuits every future probe against
// that domain. VerificationAttempts is retained (never reset) so a
// three-probe majority-vote heuristic can be recalibrated over time
// instead of treated as a one-shot permanent verdict.
type CatchAllDomain struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Domain               string    `gorm:"not null;uniqueIndex" json:"domain"`
	VerificationAttempts int       `gorm:"not null;default:1" json:"verification_attempts"`
	LastVerified         time.Time `json:"last_verified"`
}
