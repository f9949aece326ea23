// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/validation"
)

// requestTimeout bounds every REST call; beyond it the call is treated as a
// network error.
const requestTimeout = 10 * time.Second

const loginPath = "/api/v1/auth/login"

// APIError is a structured error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client is the REST consumer. A 401 on any endpoint except login wipes the
// cached credentials and fires the unauthorized callback, so a stale kiosk
// falls back to its login screen instead of looping on dead tokens.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
	breaker *gobreaker.CircuitBreaker[[]byte]

	// onUnauthorized runs after a non-login 401 cleared the credentials.
	onUnauthorized func()
}

// NewClient wires a REST client against baseURL. onUnauthorized may be nil.
func NewClient(baseURL string, cache *Cache, onUnauthorized func()) *Client {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "gridwatch-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("API circuit breaker state change")
		},
		// Server-side rejections are not availability failures; only
		// transport errors and 5xx count against the breaker
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &Client{
		baseURL:        baseURL,
		http:           &http.Client{Timeout: requestTimeout},
		cache:          cache,
		breaker:        breaker,
		onUnauthorized: onUnauthorized,
	}
}

// Login validates credentials locally, then authenticates and stores the
// token. Validation failures never reach the network.
func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) (*models.User, error) {
	req := &models.LoginRequest{Username: username, Password: password, RememberMe: rememberMe}
	if verr := validation.ValidateStruct(req); verr != nil {
		return nil, verr
	}

	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, req, &resp); err != nil {
		return nil, err
	}
	if err := c.cache.SaveAuth(resp.Token, resp.User, rememberMe); err != nil {
		return nil, fmt.Errorf("persist credentials: %w", err)
	}
	return resp.User, nil
}

// Logout wipes local credentials. There is no server-side session to end;
// tokens expire on their own.
func (c *Client) Logout() error {
	return c.cache.ClearAuth()
}

// ListGroups fetches all groups.
func (c *Client) ListGroups(ctx context.Context) ([]*models.Group, error) {
	var groups []*models.Group
	err := c.do(ctx, http.MethodGet, "/api/v1/groups/", nil, &groups)
	return groups, err
}

// ListItems fetches all items.
func (c *Client) ListItems(ctx context.Context) ([]*models.Item, error) {
	var items []*models.Item
	err := c.do(ctx, http.MethodGet, "/api/v1/items/", nil, &items)
	return items, err
}

// ListAlarms fetches the uncleared alarms.
func (c *Client) ListAlarms(ctx context.Context) ([]*models.Alarm, error) {
	var alarms []*models.Alarm
	err := c.do(ctx, http.MethodGet, "/api/v1/alarms/", nil, &alarms)
	return alarms, err
}

// CountAlarms fetches the uncleared alarm count.
func (c *Client) CountAlarms(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/alarms/count", nil, &resp)
	return resp.Count, err
}

// AcknowledgeAlarm acknowledges one alarm.
func (c *Client) AcknowledgeAlarm(ctx context.Context, id string) (*models.Alarm, error) {
	var alarm models.Alarm
	err := c.do(ctx, http.MethodPost, "/api/v1/alarms/"+id+"/ack", nil, &alarm)
	if err != nil {
		return nil, err
	}
	return &alarm, nil
}

// do issues one request through the circuit breaker and decodes the
// response envelope's data field into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = data
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, reqBody)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("server unavailable: %w", err)
		}
		return err
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// roundTrip performs the HTTP exchange and applies the 401 policy.
func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, _, ok := c.cache.LoadAuth(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		var envelope models.APIResponse
		if err := json.Unmarshal(buf.Bytes(), &envelope); err == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}

		// A dead token means every subsequent call would 401 too. Login is
		// exempt so bad credentials do not wipe a prior session.
		if resp.StatusCode == http.StatusUnauthorized && path != loginPath {
			if err := c.cache.ClearAuth(); err != nil {
				logging.Error().Err(err).Msg("Failed to clear credentials after 401")
			}
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
		}
		return nil, apiErr
	}
	return buf.Bytes(), nil
}
