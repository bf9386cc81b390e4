package checkout

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/styl6559/storefront/internal/client/postal"
	"github.com/styl6559/storefront/internal/domain"
)

var (
	emailPattern   = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// PincodeLookup resolves a pincode to its city and state. Implemented by
// postal.Client.
type PincodeLookup interface {
	Lookup(ctx context.Context, pincode string) (postal.Location, error)
}

// ShippingForm holds the buyer's in-progress shipping details. Fields are
// mutated one at a time as the buyer types; entering a complete pincode
// arms an autofill lookup that fills city and state unless the buyer has
// edited the pincode again in the meantime.
type ShippingForm struct {
	lookup PincodeLookup

	mu      sync.Mutex
	name    string
	email   string
	phone   string
	address string
	city    string
	state   string
	pincode string
	country string

	cityAutoFilled  bool
	stateAutoFilled bool
	lookupPending   bool
}

func NewShippingForm(lookup PincodeLookup) *ShippingForm {
	return &ShippingForm{lookup: lookup, country: "India"}
}

// Prefill seeds contact fields from the authenticated user's profile.
func (f *ShippingForm) Prefill(name, email, phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
	f.email = email
	f.phone = phone
}

func (f *ShippingForm) SetName(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = v
}

func (f *ShippingForm) SetEmail(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = v
}

func (f *ShippingForm) SetPhone(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phone = v
}

func (f *ShippingForm) SetAddress(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = v
}

// SetCity is a manual edit: it clears the auto-filled flag so a later
// autofill result cannot silently overwrite what the buyer typed.
func (f *ShippingForm) SetCity(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.city = v
	f.cityAutoFilled = false
}

func (f *ShippingForm) SetState(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = v
	f.stateAutoFilled = false
}

func (f *ShippingForm) SetCountry(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.country = v
}

// SetPincode records the new value and reports whether the caller should
// run Autofill: true exactly when the value is a complete 6-digit pincode.
// Any edit supersedes an in-flight lookup for the previous value.
func (f *ShippingForm) SetPincode(v string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pincode = v
	f.lookupPending = pincodePattern.MatchString(v)
	return f.lookupPending
}

// Autofill performs the lookup armed by SetPincode and applies the result
// to city and state. The result is discarded when the pincode has changed
// since the lookup started, so a slow response never overwrites a newer
// edit. Lookup failures leave the form untouched; the buyer just types
// city and state by hand.
func (f *ShippingForm) Autofill(ctx context.Context) {
	f.mu.Lock()
	pincode := f.pincode
	pending := f.lookupPending
	f.mu.Unlock()

	if !pending {
		return
	}

	loc, err := f.lookup.Lookup(ctx, pincode)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pincode != pincode || !f.lookupPending {
		// Stale: the buyer edited the pincode while we were waiting
		return
	}
	f.lookupPending = false

	if err != nil {
		return
	}
	f.city = loc.City
	f.state = loc.State
	f.cityAutoFilled = true
	f.stateAutoFilled = true
}

func (f *ShippingForm) IsAutoFilled() (city, state bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cityAutoFilled, f.stateAutoFilled
}

// Validate returns a message per invalid field, keyed by field name. An
// empty map means every constraint passed.
func (f *ShippingForm) Validate() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateLocked()
}

func (f *ShippingForm) validateLocked() map[string]string {
	errs := make(map[string]string)

	if n := len(strings.TrimSpace(f.name)); n < 2 || n > 30 {
		errs["name"] = "name must be 2-30 characters"
	}
	if len(f.email) > 50 || !emailPattern.MatchString(f.email) {
		errs["email"] = "enter a valid email address"
	}
	if !phonePattern.MatchString(f.phone) {
		errs["phone"] = "phone must be exactly 10 digits"
	}
	if n := len(strings.TrimSpace(f.address)); n < 10 || n > 100 {
		errs["address"] = "address must be 10-100 characters"
	}
	if n := len(strings.TrimSpace(f.city)); n < 2 || n > 50 {
		errs["city"] = "city must be 2-50 characters"
	}
	if n := len(strings.TrimSpace(f.state)); n < 2 || n > 50 {
		errs["state"] = "state must be 2-50 characters"
	}
	if !pincodePattern.MatchString(f.pincode) {
		errs["pincode"] = "pincode must be exactly 6 digits"
	}
	if strings.TrimSpace(f.country) == "" {
		errs["country"] = "country is required"
	}

	return errs
}

// CanSubmit reports whether the form may be submitted: every field valid
// and no pincode lookup in flight.
func (f *ShippingForm) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.lookupPending && len(f.validateLocked()) == 0
}

// Address materializes the validated fields as a shipping address.
func (f *ShippingForm) Address() domain.ShippingAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ShippingAddress{
		Name:    strings.TrimSpace(f.name),
		Email:   f.email,
		Phone:   f.phone,
		Address: strings.TrimSpace(f.address),
		City:    strings.TrimSpace(f.city),
		State:   strings.TrimSpace(f.state),
		Pincode: f.pincode,
		Country: strings.TrimSpace(f.country),
	}
}
