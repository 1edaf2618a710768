package models

import "time"

// Company is the natural aggregate of everything learned about one
// employer's email domain: its verified pattern usage counts and, once
// discovered, its catch-all status.
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex:idx_company_name_ci,expression:lower(name)" json:"name"`
	Domain    string    `gorm:"not null;index" json:"domain"`
	IsCatchAll bool      `gorm:"default:false" json:"is_catch_all"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	VerifiedPatterns []CompanyPattern `gorm:"foreignKey:CompanyID" json:"verified_patterns,omitempty"`

	// WHOIS is best-effort registration text attached when a Company is
	// first discovered. Never gates a verdict; empty when lookup fails.
	WHOIS string `gorm:"type:text" json:"whois,omitempty"`
}

// CompanyPattern is one row of Company.verifiedPatterns: a template that
// has been confirmed at least once for this company, with a usage count
// that only ever increases.
type CompanyPattern struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CompanyID     uint      `gorm:"not null;uniqueIndex:idx_company_pattern" json:"company_id"`
	Pattern       string    `gorm:"not null;uniqueIndex:idx_company_pattern" json:"pattern"`
	UsageCount    int       `gorm:"not null;default:1" json:"usage_count"`
	LastVerified  time.Time `json:"last_verified"`
}

// PatternGlobal is the process-wide counter for a template across all
// companies, independent of any single Company's usage.
type PatternGlobal struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Pattern    string `gorm:"not null;uniqueIndex" json:"pattern"`
	UsageCount int    `gorm:"not null;default:1" json:"usage_count"`
}
