package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"donation-agent/internal/services/callback"
	"donation-agent/internal/services/donation"
	"donation-agent/internal/status"
	"donation-agent/models"

	"github.com/labstack/echo/v5"
	"github.com/rs/zerolog"
)

type FlowService interface {
	Submit(ctx context.Context, form donation.Form) (models.FlowSnapshot, error)
	Reset(ctx context.Context) models.FlowSnapshot
	Snapshot() models.FlowSnapshot
}

// CallbackRelay takes deep links reported by the device.
type CallbackRelay interface {
	Deliver(raw string) error
}

type FlowHandler struct {
	flow  FlowService
	relay CallbackRelay
	log   zerolog.Logger
}

func NewFlowHandler(flow FlowService, relay CallbackRelay, log zerolog.Logger) *FlowHandler {
	return &FlowHandler{
		flow:  flow,
		relay: relay,
		log:   log,
	}
}

// Register mounts the flow routes on g. submitMW guards the submit route only.
func (h *FlowHandler) Register(g *echo.Group, submitMW ...echo.MiddlewareFunc) {
	g.GET("", h.GetFlow)
	g.POST("/submit", h.Submit, submitMW...)
	g.POST("/reset", h.Reset)
	g.POST("/callback", h.RelayCallback)
}

// Submit starts a donation from the raw form fields.
func (h *FlowHandler) Submit(c echo.Context) error {
	var form donation.Form
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	// The flow outlives the request; a dropped connection must not fail it.
	ctx := context.WithoutCancel(c.Request().Context())

	snap, err := h.flow.Submit(ctx, form)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, snap)
	case errors.Is(err, status.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, snap)
	case errors.Is(err, status.ErrFlowBusy), errors.Is(err, status.ErrStaleFlow):
		return c.JSON(http.StatusConflict, snap)
	default:
		// Failed flows are still a valid answer; the view explains them.
		h.log.Debug().Err(err).Msg("submit ended in failure")
		return c.JSON(http.StatusOK, snap)
	}
}

func (h *FlowHandler) GetFlow(c echo.Context) error {
	return c.JSON(http.StatusOK, h.flow.Snapshot())
}

func (h *FlowHandler) Reset(c echo.Context) error {
	return c.JSON(http.StatusOK, h.flow.Reset(context.WithoutCancel(c.Request().Context())))
}

// RelayCallback accepts a deep link opened on the device and hands it to the
// callback listener. Matching happens there, so foreign links are accepted
// here and dropped later.
func (h *FlowHandler) RelayCallback(c echo.Context) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	if err := h.relay.Deliver(req.URL); err != nil {
		if errors.Is(err, callback.ErrNoSubscriber) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "callback listener is not running"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not relay callback"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message": "callback accepted"})
}
