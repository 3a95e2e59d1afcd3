package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/topcity/ticket-service/internal/api/dto"
	"github.com/topcity/ticket-service/internal/auth"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/service"
	apperrors "github.com/topcity/ticket-service/pkg/util"
)

// VerifyHandler serves the door-scan endpoints.
type VerifyHandler struct {
	service *service.VerificationService
}

// NewVerifyHandler constructs handler.
func NewVerifyHandler(verificationService *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{service: verificationService}
}

// Check GET /verify/:code reports status without redeeming.
func (h *VerifyHandler) Check(c *fiber.Ctx) error {
	result, err := h.service.Check(c.UserContext(), c.Params("code"))
	return respondVerification(c, result, err)
}

// Redeem POST /verify/:code attempts the valid -> used redemption.
func (h *VerifyHandler) Redeem(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	verifiedBy := strings.TrimSpace(req.VerifiedBy)
	if verifiedBy == "" {
		verifiedBy = strings.TrimSpace(req.SellerID)
	}
	if verifiedBy == "" {
		if principal, ok := auth.PrincipalFromContext(c); ok {
			verifiedBy = principal.SubjectID
		}
	}
	if verifiedBy == "" {
		return apperrors.NewValidationError("verifiedBy required", nil)
	}

	result, err := h.service.Verify(c.UserContext(), c.Params("code"), verifiedBy)
	return respondVerification(c, result, err)
}

// History GET /verify/:code/history lists the audit trail for a code.
func (h *VerifyHandler) History(c *fiber.Ctx) error {
	records, err := h.service.History(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVerificationRecordResponses(records)})
}

func respondVerification(c *fiber.Ctx, result *service.VerificationResult, err error) error {
	if err != nil {
		if result != nil && errors.Is(err, domain.ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.NewVerifyResponse(result))
		}
		return err
	}
	status := fiber.StatusOK
	if result.Outcome == domain.OutcomeInvalid {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(dto.NewVerifyResponse(result))
}
