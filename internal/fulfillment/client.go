package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/inventory"
)

type httpResult struct {
	status int
	body   []byte
}

// Client talks to the fulfillment provider (country reference data, batched
// variant availability) and the postal lookup service. Outbound calls run
// behind per-provider circuit breakers with bounded timeouts.
type Client struct {
	baseURL    string
	apiKey     string
	zipBaseURL string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[*httpResult]
	zipBreaker *gobreaker.CircuitBreaker[*httpResult]
	log        *logrus.Entry
}

func NewClient(baseURL, apiKey, zipBaseURL string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		zipBaseURL: strings.TrimRight(zipBaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:    newBreaker("fulfillment"),
		zipBreaker: newBreaker("zip-lookup"),
		log:        log,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*httpResult] {
	return gobreaker.NewCircuitBreaker[*httpResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

type countryDTO struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	States []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"states"`
}

type countriesEnvelope struct {
	Code   int          `json:"code"`
	Result []countryDTO `json:"result"`
}

// Countries fetches the country -> state reference table.
func (c *Client) Countries(ctx context.Context) ([]domain.RegionReference, error) {
	res, err := c.do(ctx, c.breaker, http.MethodGet, c.baseURL+"/countries", nil, true)
	if err != nil {
		return nil, fmt.Errorf("countries request failed: %w", err)
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("countries request returned status %d", res.status)
	}

	var envelope countriesEnvelope
	if err := json.Unmarshal(res.body, &envelope); err != nil {
		return nil, fmt.Errorf("decode countries response failed: %w", err)
	}

	regions := make([]domain.RegionReference, 0, len(envelope.Result))
	for _, country := range envelope.Result {
		region := domain.RegionReference{
			Code: country.Code,
			Name: country.Name,
		}
		for _, state := range country.States {
			region.States = append(region.States, domain.StateOption{
				Code: state.Code,
				Name: state.Name,
			})
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// CheckVariantAvailability sends the whole batch in one request.
func (c *Client) CheckVariantAvailability(ctx context.Context, items []inventory.VariantQuantity) (*inventory.AvailabilityResponse, error) {
	payload, err := json.Marshal(map[string]interface{}{"items": items})
	if err != nil {
		return nil, fmt.Errorf("marshal availability request failed: %w", err)
	}

	res, err := c.do(ctx, c.breaker, http.MethodPost, c.baseURL+"/availability", payload, true)
	if err != nil {
		return nil, fmt.Errorf("availability request failed: %w", err)
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("availability request returned status %d", res.status)
	}

	var resp inventory.AvailabilityResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, fmt.Errorf("decode availability response failed: %w", err)
	}
	return &resp, nil
}

type zipEnvelope struct {
	Places []struct {
		PlaceName string `json:"place name"`
		StateAbbr string `json:"state abbreviation"`
	} `json:"places"`
}

// LookupZip resolves a postal code to city/state. A miss returns (nil, nil);
// only transport-level failures return an error.
func (c *Client) LookupZip(ctx context.Context, zip, countryCode string) (*address.ZipResult, error) {
	url := fmt.Sprintf("%s/%s/%s", c.zipBaseURL, strings.ToLower(countryCode), zip)
	res, err := c.do(ctx, c.zipBreaker, http.MethodGet, url, nil, false)
	if err != nil {
		return nil, fmt.Errorf("zip lookup failed: %w", err)
	}
	if res.status == http.StatusNotFound {
		return nil, nil
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("zip lookup returned status %d", res.status)
	}

	var envelope zipEnvelope
	if err := json.Unmarshal(res.body, &envelope); err != nil {
		return nil, fmt.Errorf("decode zip response failed: %w", err)
	}
	if len(envelope.Places) == 0 {
		return nil, nil
	}
	return &address.ZipResult{
		City:  envelope.Places[0].PlaceName,
		State: envelope.Places[0].StateAbbr,
	}, nil
}

func (c *Client) do(ctx context.Context, breaker *gobreaker.CircuitBreaker[*httpResult], method, url string, payload []byte, authorized bool) (*httpResult, error) {
	return breaker.Execute(func() (*httpResult, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authorized && c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		// 5xx counts as a breaker failure; 4xx is the caller's problem.
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}
		return &httpResult{status: resp.StatusCode, body: data}, nil
	})
}
