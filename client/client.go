// Package client talks to a running fuel engine over its REST API.
// fuelctl's remote commands use it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/warp/fuel-engine/api"
	"github.com/warp/fuel-engine/config"
	"github.com/warp/fuel-engine/tank"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("client: not found")

// APIError is a non-2xx response from the engine.
type APIError struct {
	Status  int
	Message string
	Details string
	Row     int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("fuel api error: status=%d, message=%s", e.Status, e.Message)
	if e.Details != "" {
		msg += ", details=" + e.Details
	}
	if e.Row > 0 {
		msg += ", row=" + strconv.Itoa(e.Row)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client is a resty-backed API client.
type Client struct {
	http *resty.Client
}

// New builds a client from the client section of the config.
func New(cfg config.ClientConfig) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/api").
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{http: rc}
}

// Health pings /api/health.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err
}

func (c *Client) ListTanks(ctx context.Context) ([]api.TankDTO, error) {
	var out []api.TankDTO
	_, err := c.do(ctx, http.MethodGet, "/tanks", nil, nil, &out)
	return out, err
}

func (c *Client) StockReport(ctx context.Context) ([]api.StockDTO, error) {
	var out []api.StockDTO
	_, err := c.do(ctx, http.MethodGet, "/stock", nil, nil, &out)
	return out, err
}

// Digest fetches flagged shifts, sales and low-stock tanks.
func (c *Client) Digest(ctx context.Context) (api.DigestDTO, error) {
	var out api.DigestDTO
	_, err := c.do(ctx, http.MethodGet, "/digest", nil, nil, &out)
	return out, err
}

// LookupDip converts a dip for a stored tank without recording it.
func (c *Client) LookupDip(ctx context.Context, tankID string, dipMM float64) (tank.DipReading, error) {
	var out tank.DipReading
	path := "/tanks/{id}/dip?dip_mm=" + strconv.FormatFloat(dipMM, 'f', -1, 64)
	_, err := c.do(ctx, http.MethodGet, path, tankParam(tankID), nil, &out)
	return out, err
}

// RecordDip converts a dip and stores it as the tank's current stock.
func (c *Client) RecordDip(ctx context.Context, tankID string, dipMM float64) (tank.DipReading, error) {
	var out tank.DipReading
	_, err := c.do(ctx, http.MethodPost, "/tanks/{id}/dip", tankParam(tankID), api.DipRequest{DipMM: dipMM}, &out)
	return out, err
}

// ImportCalibration uploads a CSV body, replacing the tank's table.
func (c *Client) ImportCalibration(ctx context.Context, tankID, csvBody string) (api.CalibrationDTO, error) {
	var out api.CalibrationDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(tankParam(tankID)).
		SetHeader("Content-Type", "text/csv").
		SetBody(csvBody).
		SetResult(&out).
		SetError(apiErr).
		Post("/tanks/{id}/calibration/import")
	if err != nil {
		return out, fmt.Errorf("import calibration: %w", err)
	}
	return out, checkResponse(resp, apiErr)
}

// tankParam fills the {id} placeholder; resty escapes the value.
func tankParam(id string) map[string]string {
	return map[string]string{"id": id}
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, result any) (*resty.Response, error) {
	apiErr := new(api.ErrorResponse)
	req := c.http.R().SetContext(ctx).SetError(apiErr)
	if params != nil {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, checkResponse(resp, apiErr)
}

func checkResponse(resp *resty.Response, apiErr *api.ErrorResponse) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	e := &APIError{Status: resp.StatusCode()}
	if apiErr != nil {
		e.Message = apiErr.Error
		e.Details = apiErr.Details
		e.Row = apiErr.Row
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}
