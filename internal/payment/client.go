package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Loka-Media/store.loka.media-sub004/internal/checkout"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

// Client charges through the external payment gateway. Capture logic lives
// entirely on the gateway side.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chargeRequestDTO struct {
	Amount   float64              `json:"amount"`
	Currency string               `json:"currency"`
	Customer *domain.CustomerInfo `json:"customer"`
}

type chargeResponseDTO struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func (c *Client) Charge(ctx context.Context, amount float64, currency string, customer *domain.CustomerInfo) (*checkout.ChargeResult, error) {
	payload, err := json.Marshal(chargeRequestDTO{
		Amount:   amount,
		Currency: currency,
		Customer: customer,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("charge request returned status %d", resp.StatusCode)
	}

	var dto chargeResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode charge response failed: %w", err)
	}

	return &checkout.ChargeResult{
		PaymentID: dto.PaymentID,
		Succeeded: dto.Status == "succeeded",
		Reason:    dto.Reason,
	}, nil
}
