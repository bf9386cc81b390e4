package httpapi

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/styl6559/storefront/internal/checkout"
	"github.com/styl6559/storefront/internal/client/postal"
)

var pincodeParam = regexp.MustCompile(`^[0-9]{6}$`)

type PostalHandler struct {
	lookup checkout.PincodeLookup
}

func NewPostalHandler(lookup checkout.PincodeLookup) *PostalHandler {
	return &PostalHandler{lookup: lookup}
}

type PostalResponseDTO struct {
	City  string `json:"city"`
	State string `json:"state"`
}

func (h *PostalHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	pincode := chi.URLParam(r, "pincode")
	if !pincodeParam.MatchString(pincode) {
		respondError(w, http.StatusBadRequest, "invalid_pincode", "pincode must be exactly 6 digits")
		return
	}

	loc, err := h.lookup.Lookup(r.Context(), pincode)
	if err != nil {
		if errors.Is(err, postal.ErrPincodeNotFound) {
			respondError(w, http.StatusNotFound, "pincode_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "lookup_failed", "postal lookup unavailable")
		return
	}

	respondJSON(w, http.StatusOK, PostalResponseDTO{City: loc.City, State: loc.State})
}
