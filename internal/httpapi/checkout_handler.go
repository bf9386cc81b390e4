package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/styl6559/storefront/internal/checkout"
)

// Abandoned forms are evicted after this much inactivity, on the next
// registry access.
const formIdleTTL = time.Hour

type formEntry struct {
	form    *checkout.ShippingForm
	touched time.Time
}

type CheckoutHandler struct {
	service *checkout.Service
	lookup  checkout.PincodeLookup
	timeout time.Duration

	mu    sync.Mutex
	forms map[string]*formEntry
}

func NewCheckoutHandler(service *checkout.Service, lookup checkout.PincodeLookup, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		lookup:  lookup,
		timeout: timeout,
		forms:   make(map[string]*formEntry),
	}
}

type BeginResponseDTO struct {
	SessionID        string   `json:"session_id"`
	Status           string   `json:"status"`
	RemovedItemNames []string `json:"removed_item_names,omitempty"`
	Existing         bool     `json:"existing,omitempty"`
}

type ShippingFieldRequestDTO struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type ShippingStateDTO struct {
	Errors          map[string]string `json:"errors"`
	CanSubmit       bool              `json:"can_submit"`
	CityAutoFilled  bool              `json:"city_auto_filled"`
	StateAutoFilled bool              `json:"state_auto_filled"`
}

type PaymentIntentDTO struct {
	OrderID  string  `json:"order_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
}

type PaymentCallbackDTO struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Reason    string `json:"reason,omitempty"`
}

type SessionStatusDTO struct {
	SessionID        string   `json:"session_id"`
	Status           string   `json:"status"`
	RemovedItemNames []string `json:"removed_item_names,omitempty"`
	OrderID          string   `json:"order_id,omitempty"`
	FailureReason    string   `json:"failure_reason,omitempty"`
}

func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required")
		return
	}

	result, err := h.service.Begin(ctx, userIDFromContext(r.Context()), idempotencyKey)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, BeginResponseDTO{
		SessionID:        result.SessionID,
		Status:           string(result.Status),
		RemovedItemNames: result.RemovedItemNames,
		Existing:         result.Existing,
	})
}

func (h *CheckoutHandler) ConfirmRemovedItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	if err := h.service.ConfirmRemovedItems(ctx, sessionID); err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(checkout.StatusEnteringShippingDetails)})
}

// SetShippingField applies one field edit to the session's form. A
// complete pincode arms an autofill lookup that runs in the background;
// the client polls GetShippingState to see it land.
func (h *CheckoutHandler) SetShippingField(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req ShippingFieldRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	form := h.form(sessionID)
	switch req.Field {
	case "name":
		form.SetName(req.Value)
	case "email":
		form.SetEmail(req.Value)
	case "phone":
		form.SetPhone(req.Value)
	case "address":
		form.SetAddress(req.Value)
	case "city":
		form.SetCity(req.Value)
	case "state":
		form.SetState(req.Value)
	case "country":
		form.SetCountry(req.Value)
	case "pincode":
		if form.SetPincode(req.Value) {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			go func() {
				defer cancel()
				form.Autofill(ctx)
			}()
		}
	default:
		respondError(w, http.StatusBadRequest, "unknown_field", "no shipping field named "+req.Field)
		return
	}

	h.respondShippingState(w, form)
}

func (h *CheckoutHandler) GetShippingState(w http.ResponseWriter, r *http.Request) {
	h.respondShippingState(w, h.form(chi.URLParam(r, "session_id")))
}

func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	intent, err := h.service.SubmitShipping(ctx, sessionID, h.form(sessionID))
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, PaymentIntentDTO{
		OrderID:  intent.OrderID,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Key:      intent.Key,
		Name:     intent.Prefill.Name,
		Email:    intent.Prefill.Email,
		Phone:    intent.Prefill.Phone,
	})
}

func (h *CheckoutHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	var req PaymentCallbackDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.service.HandlePaymentSuccess(ctx, sessionID, req.PaymentID, req.Signature); err != nil {
		handleCheckoutError(w, err)
		return
	}

	h.dropForm(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{"status": string(checkout.StatusPaymentSucceeded)})
}

func (h *CheckoutHandler) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	var req PaymentCallbackDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Form and cart stay intact for retry
	if err := h.service.HandlePaymentFailure(ctx, sessionID, req.Reason); err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(checkout.StatusPaymentFailed)})
}

func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	if err := h.service.Cancel(ctx, sessionID); err != nil {
		handleCheckoutError(w, err)
		return
	}

	h.dropForm(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{"status": string(checkout.StatusPaymentCancelled)})
}

func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.service.Session(ctx, chi.URLParam(r, "session_id"))
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SessionStatusDTO{
		SessionID:        session.ID,
		Status:           string(session.Status),
		RemovedItemNames: session.RemovedItemNames,
		OrderID:          session.OrderID,
		FailureReason:    session.FailureReason,
	})
}

func (h *CheckoutHandler) form(sessionID string) *checkout.ShippingForm {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, entry := range h.forms {
		if now.Sub(entry.touched) > formIdleTTL {
			delete(h.forms, id)
		}
	}

	entry, ok := h.forms[sessionID]
	if !ok {
		entry = &formEntry{form: checkout.NewShippingForm(h.lookup)}
		h.forms[sessionID] = entry
	}
	entry.touched = now
	return entry.form
}

func (h *CheckoutHandler) dropForm(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.forms, sessionID)
}

func (h *CheckoutHandler) respondShippingState(w http.ResponseWriter, form *checkout.ShippingForm) {
	cityAuto, stateAuto := form.IsAutoFilled()
	respondJSON(w, http.StatusOK, ShippingStateDTO{
		Errors:          form.Validate(),
		CanSubmit:       form.CanSubmit(),
		CityAutoFilled:  cityAuto,
		StateAutoFilled: stateAuto,
	})
}

func handleCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrAuthRequired):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, checkout.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, checkout.ErrInvalidForm):
		respondError(w, http.StatusUnprocessableEntity, "invalid_form", err.Error())
	case errors.Is(err, checkout.ErrLookupInFlight):
		respondError(w, http.StatusConflict, "lookup_in_flight", err.Error())
	case errors.Is(err, checkout.ErrPaymentNotVerified):
		respondError(w, http.StatusPaymentRequired, "payment_not_verified", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}
