package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/styl6559/storefront/internal/client/postal"
)

type stubLookup struct {
	loc   postal.Location
	err   error
	calls int
}

func (s *stubLookup) Lookup(_ context.Context, _ string) (postal.Location, error) {
	s.calls++
	return s.loc, s.err
}

func fillValidForm(f *ShippingForm) {
	f.SetName("Asha Rao")
	f.SetEmail("asha@example.com")
	f.SetPhone("9876543210")
	f.SetAddress("14 Marine Drive, Flat 3B")
	f.SetCity("Mumbai")
	f.SetState("Maharashtra")
	f.SetPincode("400001")
	f.lookupPending = false
}

func TestValidate_AllFieldsValid(t *testing.T) {
	f := NewShippingForm(&stubLookup{})
	fillValidForm(f)

	assert.Empty(t, f.Validate())
	assert.True(t, f.CanSubmit())
}

func TestValidate_FieldConstraints(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *ShippingForm)
		badField string
	}{
		{"name too short", func(f *ShippingForm) { f.SetName("A") }, "name"},
		{"name too long", func(f *ShippingForm) { f.SetName("Abcdefghijklmnopqrstuvwxyz abcdef") }, "name"},
		{"email missing at", func(f *ShippingForm) { f.SetEmail("asha.example.com") }, "email"},
		{"email missing dot after at", func(f *ShippingForm) { f.SetEmail("asha@example") }, "email"},
		{"email too long", func(f *ShippingForm) {
			f.SetEmail("averyveryveryveryverylongaddressforsomeone@example.com")
		}, "email"},
		{"phone too short", func(f *ShippingForm) { f.SetPhone("987654321") }, "phone"},
		{"phone with letters", func(f *ShippingForm) { f.SetPhone("98765a3210") }, "phone"},
		{"address too short", func(f *ShippingForm) { f.SetAddress("14 Marine") }, "address"},
		{"city too short", func(f *ShippingForm) { f.SetCity("M") }, "city"},
		{"state too short", func(f *ShippingForm) { f.SetState("M") }, "state"},
		{"pincode five digits", func(f *ShippingForm) { f.SetPincode("40000") }, "pincode"},
		{"pincode with letter", func(f *ShippingForm) { f.SetPincode("40000a") }, "pincode"},
		{"country empty", func(f *ShippingForm) { f.SetCountry("  ") }, "country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewShippingForm(&stubLookup{})
			fillValidForm(f)
			tt.mutate(f)
			f.lookupPending = false

			errs := f.Validate()
			assert.Contains(t, errs, tt.badField)
			assert.False(t, f.CanSubmit())
		})
	}
}

func TestSetPincode_ArmsLookupOnlyWhenComplete(t *testing.T) {
	f := NewShippingForm(&stubLookup{})

	assert.False(t, f.SetPincode("4000"))
	assert.False(t, f.SetPincode("40000a"))
	assert.True(t, f.SetPincode("400001"))
}

func TestAutofill_FillsCityAndState(t *testing.T) {
	lookup := &stubLookup{loc: postal.Location{City: "Mumbai", State: "Maharashtra"}}
	f := NewShippingForm(lookup)

	f.SetPincode("400001")
	f.Autofill(context.Background())

	addr := f.Address()
	assert.Equal(t, "Mumbai", addr.City)
	assert.Equal(t, "Maharashtra", addr.State)
	cityAuto, stateAuto := f.IsAutoFilled()
	assert.True(t, cityAuto)
	assert.True(t, stateAuto)
}

func TestAutofill_ManualEditClearsAutoFilledFlag(t *testing.T) {
	lookup := &stubLookup{loc: postal.Location{City: "Mumbai", State: "Maharashtra"}}
	f := NewShippingForm(lookup)

	f.SetPincode("400001")
	f.Autofill(context.Background())
	f.SetCity("Navi Mumbai")

	cityAuto, stateAuto := f.IsAutoFilled()
	assert.False(t, cityAuto)
	assert.True(t, stateAuto)
	assert.Equal(t, "Navi Mumbai", f.Address().City)
}

// editDuringLookup edits the pincode while the lookup for the previous
// value is still in flight.
type editDuringLookup struct {
	f   *ShippingForm
	loc postal.Location
}

func (s *editDuringLookup) Lookup(_ context.Context, _ string) (postal.Location, error) {
	s.f.SetPincode("110001")
	return s.loc, nil
}

func TestAutofill_StaleResultDiscarded(t *testing.T) {
	lookup := &editDuringLookup{loc: postal.Location{City: "Mumbai", State: "Maharashtra"}}
	f := NewShippingForm(lookup)
	lookup.f = f

	f.SetPincode("400001")
	f.Autofill(context.Background())

	// The result belonged to the superseded value and must not land
	addr := f.Address()
	assert.Empty(t, addr.City)
	assert.Empty(t, addr.State)
	cityAuto, stateAuto := f.IsAutoFilled()
	assert.False(t, cityAuto)
	assert.False(t, stateAuto)
}

func TestAutofill_LookupFailureLeavesFormUntouched(t *testing.T) {
	lookup := &stubLookup{err: errors.New("postal api down")}
	f := NewShippingForm(lookup)

	f.SetPincode("400001")
	f.Autofill(context.Background())

	addr := f.Address()
	assert.Empty(t, addr.City)
	cityAuto, stateAuto := f.IsAutoFilled()
	assert.False(t, cityAuto)
	assert.False(t, stateAuto)
	// The in-flight guard is released so the form can be submitted once
	// city and state are typed by hand
	assert.False(t, f.lookupPending)
}

func TestCanSubmit_BlockedWhileLookupInFlight(t *testing.T) {
	f := NewShippingForm(&stubLookup{loc: postal.Location{City: "Mumbai", State: "Maharashtra"}})
	fillValidForm(f)
	assert.True(t, f.CanSubmit())

	f.SetPincode("400001") // arms a lookup
	assert.False(t, f.CanSubmit())

	f.Autofill(context.Background())
	assert.True(t, f.CanSubmit())
}

func TestAddress_TrimsWhitespace(t *testing.T) {
	f := NewShippingForm(&stubLookup{})
	fillValidForm(f)
	f.SetName("  Asha Rao  ")

	assert.Equal(t, "Asha Rao", f.Address().Name)
}
