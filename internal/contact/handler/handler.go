// Package handler is the thin HTTP layer over the resolution service. It
// delegates to the service without embedding business logic so transport
// concerns remain isolated.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"identity-link/internal/contact/models"
	"identity-link/internal/platform/metrics"
	"identity-link/internal/platform/middleware"
	"identity-link/internal/transport/http/shared"
	dErrors "identity-link/pkg/domain-errors"
)

// Service defines the interface for identity resolution.
type Service interface {
	Resolve(ctx context.Context, email, phone string) (models.ConsolidatedView, error)
}

const defaultTimeout = 30 * time.Second

// Handler handles the identify endpoint.
type Handler struct {
	logger       *slog.Logger
	contacts     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new contact Handler. A nil jwtValidator leaves the endpoint
// open; a non-positive timeout falls back to the default.
func New(contacts Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		logger:       logger,
		contacts:     contacts,
		metrics:      m,
		jwtValidator: jwtValidator,
		timeout:      timeout,
	}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	contactRouter := chi.NewRouter()
	contactRouter.Use(middleware.Recovery(h.logger))
	contactRouter.Use(middleware.RequestID)
	contactRouter.Use(middleware.Logger(h.logger))
	contactRouter.Use(middleware.Timeout(h.timeout))
	contactRouter.Use(middleware.ContentTypeJSON)
	contactRouter.Use(middleware.Latency(h.metrics))
	if h.jwtValidator != nil {
		contactRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	}
	contactRouter.Post("/identify", h.handleIdentify)

	r.Mount("/", contactRouter)
}

type identifyRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

type identifyResponse struct {
	Contact models.ConsolidatedView `json:"contact"`
}

// handleIdentify resolves a contact submission into its consolidated
// identity cluster.
func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid identify request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.contacts.Resolve(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.WarnContext(ctx, "identify rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "identify failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, identifyResponse{Contact: view})
}
