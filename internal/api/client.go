package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"porter/internal/domain"
)

const (
	apiPrefix         = "/api"
	requestIDHeader   = "X-Request-ID"
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 64 << 10
)

// Client talks to the porter dispatch backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client. If nrApp is provided, outbound calls are
// recorded as external segments of the transaction found in the request context.
func NewClient(baseURL string, timeout time.Duration, nrApp *newrelic.Application) *Client {
	transport := http.DefaultTransport
	if nrApp != nil {
		transport = newrelic.NewRoundTripper(transport)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Login handles POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", LoginRequest{Email: email, Password: password}, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: resp.AccessToken, User: resp.User.toDomain()}, nil
}

// Register handles POST /auth/register.
func (c *Client) Register(ctx context.Context, profile domain.Profile) (*AuthResult, error) {
	req := RegisterRequest{
		Name:     profile.Name,
		Email:    profile.Email,
		Phone:    profile.Phone,
		Password: profile.Password,
		Role:     string(profile.Role),
	}

	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, nil, &resp); err != nil {
		return nil, err
	}
	return &AuthResult{Token: resp.AccessToken, User: resp.User.toDomain()}, nil
}

// Me handles GET /auth/me.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, nil, &resp); err != nil {
		return nil, err
	}
	user := resp.toDomain()
	return &user, nil
}

// MyRides handles GET /rides/my-rides.
func (c *Client) MyRides(ctx context.Context, token string) ([]domain.Ride, error) {
	var resp []RideResponse
	if err := c.do(ctx, http.MethodGet, "/rides/my-rides", token, nil, nil, &resp); err != nil {
		return nil, err
	}

	rides := make([]domain.Ride, 0, len(resp))
	for _, r := range resp {
		rides = append(rides, r.toDomain())
	}
	return rides, nil
}

// RequestRide handles POST /rides/request. idempotencyKey lets the backend
// collapse retries of the same submission.
func (c *Client) RequestRide(ctx context.Context, token, pickup, destination, idempotencyKey string) (*domain.Ride, error) {
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set(idempotencyHeader, idempotencyKey)
	}

	var resp RideResponse
	body := CreateRideRequest{PickupLocation: pickup, Destination: destination}
	if err := c.do(ctx, http.MethodPost, "/rides/request", token, body, headers, &resp); err != nil {
		return nil, err
	}
	ride := resp.toDomain()
	return &ride, nil
}

// UpdateRideStatus handles PUT /rides/{id}/status?status={status}.
// The response body is ignored; callers refetch.
func (c *Client) UpdateRideStatus(ctx context.Context, token, rideID string, status domain.RideStatus) error {
	path := "/rides/" + url.PathEscape(rideID) + "/status?status=" + url.QueryEscape(string(status))
	return c.do(ctx, http.MethodPut, path, token, nil, nil, nil)
}

// AvailablePorters handles GET /porters/available.
func (c *Client) AvailablePorters(ctx context.Context, token string) ([]domain.User, error) {
	var resp []UserResponse
	if err := c.do(ctx, http.MethodGet, "/porters/available", token, nil, nil, &resp); err != nil {
		return nil, err
	}

	porters := make([]domain.User, 0, len(resp))
	for _, u := range resp {
		porters = append(porters, u.toDomain())
	}
	return porters, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path, token string, in any, headers http.Header, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.New().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{StatusCode: resp.StatusCode, Message: parseErrorMessage(data)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
