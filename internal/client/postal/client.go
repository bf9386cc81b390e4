// Package postal looks up Indian postal pincodes against the public
// postalpincode.in API, behind a circuit breaker so a flaky upstream
// cannot stall every shipping form.
package postal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrPincodeNotFound = errors.New("no location found for pincode")

// Location is the city/state pair a successful lookup resolves to.
type Location struct {
	City  string
	State string
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Location]
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "postal-lookup",
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
		http:    &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[Location](settings),
		logger:  logger,
	}
}

// apiResponse mirrors the postalpincode.in payload shape: an array with a
// single element carrying the status and matched post offices.
type apiResponse []struct {
	Status     string `json:"Status"`
	PostOffice []struct {
		District string `json:"District"`
		State    string `json:"State"`
	} `json:"PostOffice"`
}

func (c *Client) Lookup(ctx context.Context, pincode string) (Location, error) {
	return c.breaker.Execute(func() (Location, error) {
		return c.lookup(ctx, pincode)
	})
}

func (c *Client) lookup(ctx context.Context, pincode string) (Location, error) {
	url := fmt.Sprintf("%s/pincode/%s", c.baseURL, pincode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to build pincode request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("pincode lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("pincode lookup returned status %d", resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Location{}, fmt.Errorf("failed to decode pincode response: %w", err)
	}

	if len(decoded) == 0 || decoded[0].Status != "Success" || len(decoded[0].PostOffice) == 0 {
		return Location{}, ErrPincodeNotFound
	}

	office := decoded[0].PostOffice[0]
	return Location{City: office.District, State: office.State}, nil
}
