package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

// HTTPAuthClient implements AuthClient against the storefront auth service.
type HTTPAuthClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPAuthClient(baseURL string, timeout time.Duration) *HTTPAuthClient {
	return &HTTPAuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type loginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponseDTO struct {
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	} `json:"user"`
}

func (c *HTTPAuthClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	payload, err := json.Marshal(loginRequestDTO{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshal login request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrBadCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login request returned status %d", resp.StatusCode)
	}

	var dto loginResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode login response failed: %w", err)
	}

	return &LoginResponse{
		AccessToken:  dto.Tokens.AccessToken,
		RefreshToken: dto.Tokens.RefreshToken,
		User: domain.SessionUser{
			ID:    dto.User.ID,
			Name:  dto.User.Name,
			Email: dto.User.Email,
			Phone: dto.User.Phone,
			Role:  dto.User.Role,
		},
	}, nil
}
