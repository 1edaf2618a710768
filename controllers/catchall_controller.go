package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"verihunt/models"
)

// CatchAllController exposes GET /catch-all.
type CatchAllController struct {
	DB *gorm.DB
}

// NewCatchAllController builds a CatchAllController.
func NewCatchAllController(db *gorm.DB) *CatchAllController {
	return &CatchAllController{DB: db}
}

// ListCatchAll handles GET /catch-all?limit=N: the N most recently
// verified catch-all domains, defaulting to 100.
func (cc *CatchAllController) ListCatchAll(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var domains []models.CatchAllDomain
	err := cc.DB.WithContext(c.Context()).
		Order("last_verified DESC").
		Limit(limit).
		Find(&domains).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load catch-all domains"})
	}
	return c.JSON(domains)
}
