package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/api/dto"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/service"
	apperrors "github.com/topcity/ticket-service/pkg/util"
)

const (
	signatureHeader = "X-Signature"
	signaturePrefix = "sha256="
)

// WebhookHandler receives payment processor events.
type WebhookHandler struct {
	issuance *service.IssuanceService
	tickets  *service.TicketService
	secret   []byte
	logger   *zap.Logger
}

// NewWebhookHandler constructs handler. An empty secret disables signature
// checks.
func NewWebhookHandler(issuance *service.IssuanceService, tickets *service.TicketService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{issuance: issuance, tickets: tickets, secret: []byte(secret), logger: logger}
}

// Payments POST /webhooks/payments.
func (h *WebhookHandler) Payments(c *fiber.Ctx) error {
	body := c.Body()
	if len(h.secret) > 0 && !h.validSignature(body, c.Get(signatureHeader)) {
		return apperrors.NewUnauthorized("invalid webhook signature")
	}

	var envelope dto.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Type == "" {
		return apperrors.NewValidationError("invalid webhook payload", nil)
	}
	ctx := c.UserContext()

	var (
		payment domain.PaymentEvent
		err     error
	)
	switch envelope.Type {
	case dto.WebhookCheckoutCompleted:
		var session dto.CheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return apperrors.NewValidationError("invalid checkout session", nil)
		}
		if !session.Paid() {
			return h.ignore(c, envelope, "checkout not paid")
		}
		payment, err = session.PaymentEvent()
	case dto.WebhookIntentSucceeded:
		var intent dto.PaymentIntent
		if err := json.Unmarshal(envelope.Data.Object, &intent); err != nil {
			return apperrors.NewValidationError("invalid payment intent", nil)
		}
		if !intent.HasTicketMetadata() {
			return h.ignore(c, envelope, "issued from checkout session")
		}
		payment, err = intent.PaymentEvent()
	case dto.WebhookPaymentConfirmed:
		var canonical dto.CanonicalPayment
		if err := json.Unmarshal(envelope.Data.Object, &canonical); err != nil {
			return apperrors.NewValidationError("invalid payment", nil)
		}
		payment, err = canonical.PaymentEvent()
	case dto.WebhookChargeRefunded:
		return h.refund(ctx, c, envelope)
	default:
		return h.ignore(c, envelope, "unhandled type")
	}
	if err != nil {
		return err
	}

	tickets, err := h.issuance.Issue(ctx, payment)
	if err != nil {
		h.logger.Warn("payment not issued",
			zap.String("webhook_id", envelope.ID),
			zap.String("type", envelope.Type),
			zap.Error(err))
		return err
	}
	return c.JSON(fiber.Map{
		"received": true,
		"data":     dto.NewTicketResponses(tickets),
	})
}

func (h *WebhookHandler) refund(ctx context.Context, c *fiber.Ctx, envelope dto.WebhookEnvelope) error {
	var charge dto.Charge
	if err := json.Unmarshal(envelope.Data.Object, &charge); err != nil {
		return apperrors.NewValidationError("invalid charge", nil)
	}
	if !charge.Refunded {
		return h.ignore(c, envelope, "partial refund")
	}
	cancelled, err := h.tickets.CancelOrder(ctx, charge.PaymentIntent, "charge refunded")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true, "cancelled": cancelled})
}

func (h *WebhookHandler) ignore(c *fiber.Ctx, envelope dto.WebhookEnvelope, reason string) error {
	h.logger.Debug("webhook ignored",
		zap.String("webhook_id", envelope.ID),
		zap.String("type", envelope.Type),
		zap.String("reason", reason))
	return c.JSON(fiber.Map{"received": true, "ignored": reason})
}

func (h *WebhookHandler) validSignature(body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Signature value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
