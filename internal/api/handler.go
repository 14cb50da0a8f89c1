package api

import (
	"context"

	"entitlement-api/internal/models"
	"entitlement-api/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_validations_total",
		Help: "Receipt validations by result",
	}, []string{"result"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_notifications_total",
		Help: "App Store notifications by type and result",
	}, []string{"type", "result"})
)

// Validator validates client-submitted purchases.
type Validator interface {
	Validate(ctx context.Context, req services.ValidateRequest) (*services.ValidationResult, error)
}

// Processor applies App Store notifications.
type Processor interface {
	Process(ctx context.Context, signedPayload string) (*services.Outcome, error)
}

// Resolver answers premium queries.
type Resolver interface {
	IsPremium(ctx context.Context, userID string) (services.PremiumStatus, error)
}

// HistoryReader lists a user's stored subscriptions.
type HistoryReader interface {
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
}

// Pinger checks a dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the handler dependencies.
type Config struct {
	Validator Validator
	Processor Processor
	Resolver  Resolver
	History   HistoryReader
	Database  Pinger
	// Release hides error details from clients.
	Release bool
}

// Handler serves the subscription API.
type Handler struct {
	validator Validator
	processor Processor
	resolver  Resolver
	history   HistoryReader
	database  Pinger
	release   bool
}

// NewHandler creates a handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		validator: cfg.Validator,
		processor: cfg.Processor,
		resolver:  cfg.Resolver,
		history:   cfg.History,
		database:  cfg.Database,
		release:   cfg.Release,
	}
}

const genericErrorMessage = "request could not be completed"

// clientMessage returns what the client sees for err. Release builds collapse
// every failure to one message; logs keep the detail.
func (h *Handler) clientMessage(err error) string {
	if h.release {
		return genericErrorMessage
	}
	return err.Error()
}
