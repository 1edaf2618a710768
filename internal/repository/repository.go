// Package repository is the persistence boundary between the
// verification domain packages and gorm.io/gorm, following the
// teacher's controllers/verification_controller.go call style
// (vc.DB.Where(...).First(...), tx.Model(...).Updates(...)) but pulled
// out behind interfaces so internal/verify can be tested without a
// database. All lookups that need to be case-insensitive use SQL
// LOWER(...) = LOWER(?) rather than regex, per the fix documented for
// the teacher's occasional regex-as-equality habit elsewhere.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"verihunt/models"
)

// CompanyRepository persists what has been learned about one employer:
// its resolved domain, catch-all status, and confirmed patterns.
type CompanyRepository interface {
	FindByNameOrDomain(ctx context.Context, name, domain string) (*models.Company, error)
	Upsert(ctx context.Context, name, domain, whois string) (*models.Company, error)
	BumpPattern(ctx context.Context, companyID uint, pattern string) error
	SetCatchAll(ctx context.Context, domain string, isCatchAll bool) error
}

// PatternRepository persists the process-wide (company-independent)
// template usage counters.
type PatternRepository interface {
	BumpGlobal(ctx context.Context, pattern string) error
}

// PersonRepository persists individuals and their probe history.
type PersonRepository interface {
	FindNatural(ctx context.Context, firstName, lastName, company string) (*models.Person, error)
	UpsertWithHistory(ctx context.Context, person *models.Person, logs []models.ProbeLog) error
}

// CatchAllDomainRepository persists domains already confirmed to accept
// any local-part, and their recalibration bookkeeping.
type CatchAllDomainRepository interface {
	Find(ctx context.Context, domain string) (*models.CatchAllDomain, error)
	IsKnownCatchAll(ctx context.Context, domain string) (bool, error)
	Upsert(ctx context.Context, domain string) error
	Stale(ctx context.Context, olderThan time.Duration) ([]models.CatchAllDomain, error)
}

type companyRepository struct{ db *gorm.DB }

// NewCompanyRepository builds a CompanyRepository backed by db.
func NewCompanyRepository(db *gorm.DB) CompanyRepository { return &companyRepository{db: db} }

func (r *companyRepository) FindByNameOrDomain(ctx context.Context, name, domain string) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).
		Preload("VerifiedPatterns").
		Where("LOWER(name) = LOWER(?) OR domain = ?", name, domain).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) Upsert(ctx context.Context, name, domain, whois string) (*models.Company, error) {
	existing, err := r.FindByNameOrDomain(ctx, name, domain)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	company := &models.Company{Name: name, Domain: domain, WHOIS: whois}
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		return nil, err
	}
	return company, nil
}

func (r *companyRepository) BumpPattern(ctx context.Context, companyID uint, pattern string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CompanyPattern
		err := tx.Where("company_id = ? AND pattern = ?", companyID, pattern).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.CompanyPattern{
				CompanyID:    companyID,
				Pattern:      pattern,
				UsageCount:   1,
				LastVerified: time.Now(),
			}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&existing).Updates(map[string]interface{}{
				"usage_count":   existing.UsageCount + 1,
				"last_verified": time.Now(),
			}).Error
		}
	})
}

func (r *companyRepository) SetCatchAll(ctx context.Context, domain string, isCatchAll bool) error {
	return r.db.WithContext(ctx).Model(&models.Company{}).
		Where("LOWER(domain) = LOWER(?)", domain).
		Update("is_catch_all", isCatchAll).Error
}

type patternRepository struct{ db *gorm.DB }

// NewPatternRepository builds a PatternRepository backed by db.
func NewPatternRepository(db *gorm.DB) PatternRepository { return &patternRepository{db: db} }

func (r *patternRepository) BumpGlobal(ctx context.Context, pattern string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PatternGlobal
		err := tx.Where("pattern = ?", pattern).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.PatternGlobal{Pattern: pattern, UsageCount: 1}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&existing).Update("usage_count", existing.UsageCount+1).Error
		}
	})
}

type personRepository struct{ db *gorm.DB }

// NewPersonRepository builds a PersonRepository backed by db.
func NewPersonRepository(db *gorm.DB) PersonRepository { return &personRepository{db: db} }

func (r *personRepository) FindNatural(ctx context.Context, firstName, lastName, company string) (*models.Person, error) {
	var person models.Person
	err := r.db.WithContext(ctx).
		Preload("AllTestedEmails").
		Where("LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?) AND LOWER(company) = LOWER(?)",
			firstName, lastName, company).
		First(&person).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// UpsertWithHistory saves person's current fields (creating it if it
// doesn't yet have an ID) and appends logs to its probe history in one
// transaction, mirroring the teacher's
// enhancedProcessBulkVerification's end-of-batch persistence step.
func (r *personRepository) UpsertWithHistory(ctx context.Context, person *models.Person, logs []models.ProbeLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if person.ID == 0 {
			if err := tx.Create(person).Error; err != nil {
				return err
			}
		} else if err := tx.Save(person).Error; err != nil {
			return err
		}
		for i := range logs {
			logs[i].PersonID = person.ID
		}
		if len(logs) > 0 {
			if err := tx.Create(&logs).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

type catchAllDomainRepository struct{ db *gorm.DB }

// NewCatchAllDomainRepository builds a CatchAllDomainRepository backed by db.
func NewCatchAllDomainRepository(db *gorm.DB) CatchAllDomainRepository {
	return &catchAllDomainRepository{db: db}
}

func (r *catchAllDomainRepository) Find(ctx context.Context, domain string) (*models.CatchAllDomain, error) {
	var record models.CatchAllDomain
	err := r.db.WithContext(ctx).Where("LOWER(domain) = LOWER(?)", domain).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *catchAllDomainRepository) IsKnownCatchAll(ctx context.Context, domain string) (bool, error) {
	record, err := r.Find(ctx, domain)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (r *catchAllDomainRepository) Upsert(ctx context.Context, domain string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CatchAllDomain
		err := tx.Where("LOWER(domain) = LOWER(?)", domain).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.CatchAllDomain{
				Domain:               domain,
				VerificationAttempts: 1,
				LastVerified:         time.Now(),
			}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&existing).Updates(map[string]interface{}{
				"verification_attempts": existing.VerificationAttempts + 1,
				"last_verified":         time.Now(),
			}).Error
		}
	})
}

func (r *catchAllDomainRepository) Stale(ctx context.Context, olderThan time.Duration) ([]models.CatchAllDomain, error) {
	var domains []models.CatchAllDomain
	cutoff := time.Now().Add(-olderThan)
	err := r.db.WithContext(ctx).Where("last_verified < ?", cutoff).Find(&domains).Error
	return domains, err
}
