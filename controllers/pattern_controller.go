package controllers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"verihunt/models"
)

// PatternController exposes GET /patterns.
type PatternController struct {
	DB *gorm.DB
}

// NewPatternController builds a PatternController.
func NewPatternController(db *gorm.DB) *PatternController {
	return &PatternController{DB: db}
}

// ListPatterns handles GET /patterns: the top 20 global templates by
// usage count descending.
func (pc *PatternController) ListPatterns(c *fiber.Ctx) error {
	var patterns []models.PatternGlobal
	err := pc.DB.WithContext(c.Context()).
		Order("usage_count DESC").
		Limit(20).
		Find(&patterns).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load patterns"})
	}
	return c.JSON(patterns)
}
