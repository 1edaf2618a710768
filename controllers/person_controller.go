package controllers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"verihunt/models"
)

// PersonController exposes GET /person.
type PersonController struct {
	DB *gorm.DB
}

// NewPersonController builds a PersonController.
func NewPersonController(db *gorm.DB) *PersonController {
	return &PersonController{DB: db}
}

// GetPerson handles GET /person?firstName=&lastName=&company=, a
// case-insensitive exact natural-key lookup.
func (pc *PersonController) GetPerson(c *fiber.Ctx) error {
	firstName := c.Query("firstName")
	lastName := c.Query("lastName")
	company := c.Query("company")

	if firstName == "" || lastName == "" || company == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "firstName, lastName and company are all required",
		})
	}

	var person models.Person
	err := pc.DB.WithContext(c.Context()).
		Preload("AllTestedEmails").
		Where("LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?) AND LOWER(company) = LOWER(?)",
			firstName, lastName, company).
		First(&person).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "person not found"})
	}

	return c.JSON(person)
}
