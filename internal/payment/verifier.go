package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrSignatureMismatch = errors.New("payment signature mismatch")

// Verifier checks the signature the payment gateway attaches to a
// successful payment callback.
type Verifier interface {
	Verify(orderID, paymentID, signature string) error
}

// HMACVerifier validates gateway callbacks by recomputing the
// HMAC-SHA256 of "orderID|paymentID" with the shared gateway secret and
// comparing it against the submitted signature.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return fmt.Errorf("%w: missing field", ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
