package models

import "time"

// Person is keyed by the natural (firstName, lastName, company) triple,
// case-insensitively. VerifiedEmail mirrors the last successful probe in
// AllTestedEmails; it is nil until one exists.
type Person struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	FirstName       string     `gorm:"not null;uniqueIndex:idx_person_natural,expression:lower(first_name)" json:"first_name"`
	LastName        string     `gorm:"not null;uniqueIndex:idx_person_natural,expression:lower(last_name)" json:"last_name"`
	Company         string     `gorm:"not null;uniqueIndex:idx_person_natural,expression:lower(company)" json:"company"`
	Domain          string     `gorm:"not null" json:"domain"`
	VerifiedEmail   *string    `json:"verified_email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`

	CurrentPosition      string `json:"current_position,omitempty"`
	Phone                string `json:"phone,omitempty"`
	EducationalInstitute string `json:"educational_institute,omitempty"`
	PreviousCompanies    string `json:"previous_companies,omitempty"`
	Qualifications       string `json:"qualifications,omitempty"`

	AllTestedEmails []ProbeLog `gorm:"foreignKey:PersonID" json:"all_tested_emails,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProbeLog is one append-only entry of Person.allTestedEmails: the
// persisted trace of a single SMTP probe attempt against a candidate
// address, kept even after the transient ProbeResult it was built from
// is discarded.
type ProbeLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PersonID  uint      `gorm:"not null;index" json:"person_id"`
	Email     string    `gorm:"not null" json:"email"`
	Valid     bool      `gorm:"not null" json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	SourceIP  string    `json:"source_ip,omitempty"`
	TestedAt  time.Time `json:"tested_at"`
}
