package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"kicks-forecast-api/pkg/models"
)

// ErrorKindHeader carries the error kind alongside {"error": ...} bodies.
const ErrorKindHeader = "X-Error-Kind"

// APIKeyHeader is checked on /api routes when an API key is configured.
const APIKeyHeader = "X-API-KEY"

// RemoteError リモートミラーが返したエラー応答
type RemoteError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote prediction error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("remote prediction error: status=%d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the remote kind back onto the local sentinel errors.
// A rejected API key means the mirror cannot be used, so it counts as unavailable.
func (e *RemoteError) Unwrap() error {
	if e.Kind != "" {
		return errorForKind(e.Kind)
	}
	switch {
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrModelNotLoaded
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrBackendUnavailable
	case e.StatusCode == http.StatusBadRequest:
		return ErrMalformedInput
	default:
		return ErrPredictionFailed
	}
}

// RemoteBackend forwards requests to another instance of this API over JSON/HTTP.
type RemoteBackend struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewRemoteBackend creates the client. apiKey is sent as X-API-KEY when set.
// httpClient may be nil; tests inject a RoundTripper.
func NewRemoteBackend(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) (*RemoteBackend, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote backend: base url required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}
	return &RemoteBackend{baseURL: baseURL, apiKey: apiKey, timeout: timeout, httpClient: httpClient}, nil
}

func (b *RemoteBackend) Name() string { return BackendRemote }

func (b *RemoteBackend) Predict(ctx context.Context, req models.PredictRequest) (*models.PredictionResult, error) {
	var out models.PredictionResult
	if err := b.doJSON(ctx, http.MethodPost, "/api/predict", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *RemoteBackend) Metadata(ctx context.Context) (*models.Metadata, error) {
	var out models.Metadata
	if err := b.doJSON(ctx, http.MethodGet, "/api/metadata", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *RemoteBackend) Metrics(ctx context.Context) (*models.ModelMetrics, error) {
	var out models.ModelMetrics
	if err := b.doJSON(ctx, http.MethodGet, "/api/metrics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status は到達不能な場合も Available=false として返す
func (b *RemoteBackend) Status(ctx context.Context) models.ModelStatus {
	var out models.ModelStatus
	if err := b.doJSON(ctx, http.MethodGet, "/api/check-models", nil, &out); err != nil {
		return models.ModelStatus{Available: false, Message: err.Error()}
	}
	return out
}

func (b *RemoteBackend) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrMalformedInput, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set(APIKeyHeader, b.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		rerr := &RemoteError{StatusCode: resp.StatusCode, Kind: resp.Header.Get(ErrorKindHeader)}
		var er models.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			rerr.Message = er.Error
		} else {
			rerr.Message = strings.TrimSpace(string(raw))
		}
		return rerr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPredictionFailed, err)
	}
	return nil
}
