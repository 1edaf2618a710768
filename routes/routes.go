// Package routes wires controllers to fiber routes the way the
// teacher's routes/routes.go groups endpoints with
// fiber/middleware/logger and per-group middleware stacks.
package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"verihunt/controllers"
	"verihunt/internal/verify"
	"verihunt/logging"
	"verihunt/middleware"

	"gorm.io/gorm"
)

// SetupRoutes registers every HTTP endpoint of the verification
// service on app.
func SetupRoutes(app *fiber.App, db *gorm.DB, orchestrator *verify.Orchestrator, appLogger *log.Logger, events *logging.Router) {
	verifyController := controllers.NewVerifyController(orchestrator, appLogger, events)
	companyController := controllers.NewCompanyController(db)
	patternController := controllers.NewPatternController(db)
	personController := controllers.NewPersonController(db)
	catchAllController := controllers.NewCatchAllController(db)

	verifyGroup := app.Group("/verify", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}), middleware.VerifyRateLimiter())
	verifyGroup.Post("", verifyController.Verify)

	app.Get("/company/:company", companyController.GetCompany)
	app.Get("/patterns", patternController.ListPatterns)
	app.Get("/person", personController.GetPerson)
	app.Get("/catch-all", catchAllController.ListCatchAll)
}
