package controllers

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"verihunt/models"
)

// CompanyController exposes GET /company/:company.
type CompanyController struct {
	DB *gorm.DB
}

// NewCompanyController builds a CompanyController.
func NewCompanyController(db *gorm.DB) *CompanyController {
	return &CompanyController{DB: db}
}

type patternView struct {
	Pattern      string `json:"pattern"`
	UsageCount   int    `json:"usageCount"`
	LastVerified string `json:"lastVerified"`
}

// GetCompany handles GET /company/:company.
func (cc *CompanyController) GetCompany(c *fiber.Ctx) error {
	name := c.Params("company")

	var company models.Company
	err := cc.DB.WithContext(c.Context()).
		Preload("VerifiedPatterns").
		Where("LOWER(name) = LOWER(?)", name).
		First(&company).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "company not found"})
	}

	patterns := make([]patternView, len(company.VerifiedPatterns))
	for i, p := range company.VerifiedPatterns {
		patterns[i] = patternView{
			Pattern:      p.Pattern,
			UsageCount:   p.UsageCount,
			LastVerified: p.LastVerified.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].UsageCount > patterns[j].UsageCount })

	return c.JSON(fiber.Map{
		"name":       company.Name,
		"domain":     company.Domain,
		"isCatchAll": company.IsCatchAll,
		"whois":      company.WHOIS,
		"patterns":   patterns,
	})
}
