// Package controllers is the HTTP boundary: fiber handlers that parse
// requests, validate them, and hand off to the internal/verify
// orchestrator, following the teacher's
// VerificationController{DB, Logger} receiver shape from
// controllers/verification_controller.go.
package controllers

import (
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"verihunt/internal/verify"
	"verihunt/logging"
	"verihunt/verrors"
)

var validate = validator.New()

// VerifyController exposes POST /verify.
type VerifyController struct {
	Orchestrator *verify.Orchestrator
	Logger       *log.Logger
	Events       *logging.Router
}

// NewVerifyController builds a VerifyController.
func NewVerifyController(orch *verify.Orchestrator, logger *log.Logger, events *logging.Router) *VerifyController {
	return &VerifyController{Orchestrator: orch, Logger: logger, Events: events}
}

type verifyRequestBody struct {
	FirstName            string `json:"firstName" validate:"required,min=2"`
	LastName             string `json:"lastName" validate:"required,min=2"`
	Company              string `json:"company" validate:"required,min=2"`
	Domain               string `json:"domain,omitempty" validate:"omitempty,fqdn"`
	CurrentPosition      string `json:"currentPosition,omitempty"`
	Phone                string `json:"phone,omitempty"`
	EducationalInstitute string `json:"educationalInstitute,omitempty"`
	PreviousCompanies    string `json:"previousCompanies,omitempty"`
	Qualifications       string `json:"qualifications,omitempty"`
}

// Verify handles POST /verify.
func (vc *VerifyController) Verify(c *fiber.Ctx) error {
	var body verifyRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if body.Domain != "" {
		if err := checkmail.ValidateHost(body.Domain); err != nil {
			vc.Logger.Printf("domain host check failed for %s: %v", body.Domain, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "domain does not resolve to a mail-capable host"})
		}
	}

	req := verify.Request{
		FirstName:            strings.TrimSpace(body.FirstName),
		LastName:             strings.TrimSpace(body.LastName),
		Company:              strings.TrimSpace(body.Company),
		ProvidedDomain:       strings.TrimSpace(body.Domain),
		CurrentPosition:      body.CurrentPosition,
		Phone:                body.Phone,
		EducationalInstitute: body.EducationalInstitute,
		PreviousCompanies:    body.PreviousCompanies,
		Qualifications:       body.Qualifications,
	}

	resp, err := vc.Orchestrator.Run(c.Context(), req)
	if err != nil {
		vc.Logger.Printf("verification failed for %s %s @ %s: %v", req.FirstName, req.LastName, req.Company, err)
		if vc.Events != nil {
			vc.Events.CaptureError(resp.RequestID, "verification_failed", err, map[string]interface{}{
				"firstName": req.FirstName,
				"lastName":  req.LastName,
				"company":   req.Company,
				"domain":    req.ProvidedDomain,
			})
		}
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(resp)
}

// statusForError distinguishes domain-discovery failures the caller
// can fix by supplying more input (400) from repository/internal
// failures on our side (500).
func statusForError(err error) int {
	probeErr, ok := verrors.As(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch probeErr.Reason {
	case verrors.NoMXRecord, verrors.DomainUnknown:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
