// Package orders talks to the order backend that creates orders from a
// checked-out cart and verifies payment-gateway callbacks.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/domain"
)

var ErrVerificationFailed = errors.New("payment verification failed")

// APIError carries the backend's own message so it can be shown to the
// buyer instead of a generic failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("order backend returned %d: %s", e.StatusCode, e.Message)
}

type OrderItem struct {
	ProductID    string `json:"productId"`
	Quantity     int    `json:"quantity"`
	SelectedSize string `json:"selectedSize,omitempty"`
}

type CreateOrderRequest struct {
	Items           []OrderItem            `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
}

type CreateOrderResponse struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Key      string  `json:"key"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "orders-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	body, err := c.post(ctx, "/api/v1/orders", req)
	if err != nil {
		return nil, err
	}

	var created CreateOrderResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &created, nil
}

func (c *Client) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) error {
	_, err := c.post(ctx, "/api/v1/orders/verify-payment", req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %s", ErrVerificationFailed, apiErr.Message)
		}
		return err
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("order backend request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: extractMessage(body)}
		}
		return body, nil
	})
}

// extractMessage pulls the human-readable message out of an error body,
// falling back to a generic one when the backend sent nothing usable.
func extractMessage(body []byte) string {
	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Message != "" {
			return decoded.Message
		}
		if decoded.Error != "" {
			return decoded.Error
		}
	}
	return "something went wrong, please try again"
}
