package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/platform/auth"
	"github.com/lumalingua/api/internal/platform/httpx"
	"github.com/lumalingua/api/internal/services"
)

const (
	maxWebhookBodySize = 64 * 1024
	maxBookingPageSize = 50
)

// BookingHandlers serves upcoming bookings and ingests scheduling-widget callbacks.
type BookingHandlers struct {
	authn              *auth.Authenticator
	bookings           services.BookingService
	webhookMiddlewares []func(http.Handler) http.Handler
}

// NewBookingHandlers constructs a new BookingHandlers instance. The webhook
// middlewares carry the signature validation applied to widget callbacks.
func NewBookingHandlers(authn *auth.Authenticator, bookings services.BookingService, webhookMiddlewares ...func(http.Handler) http.Handler) *BookingHandlers {
	return &BookingHandlers{
		authn:              authn,
		bookings:           bookings,
		webhookMiddlewares: webhookMiddlewares,
	}
}

// Routes registers the /bookings endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		for _, mw := range h.webhookMiddlewares {
			if mw != nil {
				g.Use(mw)
			}
		}
		g.Post("/bookings/webhook", h.handleWebhook)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Get("/bookings", h.listBookings)
	})
}

type bookingWebhookRequest struct {
	Event   string `json:"event"`
	Payload struct {
		Invitee struct {
			URI   string `json:"uri"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
		EventType      string `json:"event_type"`
		ScheduledEvent struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"scheduled_event"`
	} `json:"payload"`
}

func (h *BookingHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req bookingWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.BookingWebhookCommand{
		Event:        strings.TrimSpace(req.Event),
		InviteeURI:   strings.TrimSpace(req.Payload.Invitee.URI),
		InviteeEmail: req.Payload.Invitee.Email,
		InviteeName:  req.Payload.Invitee.Name,
		EventType:    req.Payload.EventType,
	}
	if ts, ok := parseWebhookTime(req.Payload.ScheduledEvent.StartTime); ok {
		cmd.StartTime = ts
	}
	if ts, ok := parseWebhookTime(req.Payload.ScheduledEvent.EndTime); ok {
		cmd.EndTime = ts
	}

	if err := h.bookings.HandleWebhookEvent(ctx, cmd); err != nil {
		if errors.Is(err, services.ErrBookingInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("booking_error", "failed to process booking event", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

func (h *BookingHandlers) listBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication with a verified email is required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxBookingPageSize {
			size = maxBookingPageSize
		}
		pageSize = size
	}

	page, err := h.bookings.ListUpcoming(ctx, services.ListBookingsCommand{
		Email: identity.Email,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: query.Get("page_token"),
		},
	})
	if err != nil {
		if errors.Is(err, services.ErrBookingInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("booking_error", "failed to list bookings", http.StatusInternalServerError))
		return
	}

	items := make([]bookingPayload, 0, len(page.Items))
	for _, booking := range page.Items {
		items = append(items, buildBookingPayload(booking))
	}

	writeJSONResponse(w, http.StatusOK, listBookingsResponse{
		Bookings:      items,
		NextPageToken: page.NextPageToken,
	})
}

func parseWebhookTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

type listBookingsResponse struct {
	Bookings      []bookingPayload `json:"bookings"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type bookingPayload struct {
	ID          string `json:"id"`
	EventType   string `json:"event_type,omitempty"`
	InviteeName string `json:"invitee_name,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
}

func buildBookingPayload(booking services.Booking) bookingPayload {
	return bookingPayload{
		ID:          booking.ID,
		EventType:   booking.EventType,
		InviteeName: booking.InviteeName,
		StartTime:   formatTime(booking.StartTime),
		EndTime:     formatTime(booking.EndTime),
		Status:      string(booking.Status),
	}
}
