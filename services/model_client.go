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
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPage     = "1"
	DefaultPageSize = "5"

	maxUpstreamBody = 10 << 20
)

// Result is an upstream response that passed the proxy checks: a status below
// 400 and a body that is valid JSON. Body is never rewritten.
type Result struct {
	Status int
	Body   json.RawMessage
}

// ModelClient talks to the prediction service (the FastAPI app serving the
// corona and variole models).
type ModelClient struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

func NewModelClient(baseURL string, timeout time.Duration) *ModelClient {
	return &ModelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logrus.WithField("component", "model_client"),
	}
}

func (mc *ModelClient) BaseURL() string {
	return mc.baseURL
}

func (mc *ModelClient) Predict(ctx context.Context, req *PredictionRequest) (*Result, error) {
	return mc.post(ctx, "/predict", req)
}

func (mc *ModelClient) PredictTotalCases(ctx context.Context, req *PredictionRequest) (*Result, error) {
	return mc.post(ctx, "/predict-total-cases", req)
}

func (mc *ModelClient) ModelInfo(ctx context.Context) (*Result, error) {
	return mc.do(ctx, http.MethodGet, "/model-info", nil)
}

// ProcessedData pages through the training data. Empty values fall back to
// page 1 of size 5; anything else is forwarded untouched.
func (mc *ModelClient) ProcessedData(ctx context.Context, page, pageSize string) (*Result, error) {
	if page == "" {
		page = DefaultPage
	}
	if pageSize == "" {
		pageSize = DefaultPageSize
	}

	q := url.Values{}
	q.Set("page", page)
	q.Set("page_size", pageSize)
	return mc.do(ctx, http.MethodGet, "/api/processed-data?"+q.Encode(), nil)
}

func (mc *ModelClient) Health(ctx context.Context) (*Result, error) {
	return mc.do(ctx, http.MethodGet, "/", nil)
}

func (mc *ModelClient) post(ctx context.Context, path string, req *PredictionRequest) (*Result, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, invalidRequest("Invalid request body", nil, err)
	}
	return mc.do(ctx, http.MethodPost, path, jsonData)
}

func (mc *ModelClient) do(ctx context.Context, method, path string, payload []byte) (*Result, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, mc.baseURL+path, body)
	if err != nil {
		return nil, upstreamUnavailable("AI service URL is invalid", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := mc.client.Do(req)
	if err != nil {
		mc.log.WithError(err).WithFields(logrus.Fields{"method": method, "path": path}).Warn("upstream call failed")
		if isTimeout(err) {
			return nil, upstreamUnavailable("AI service request timed out", err)
		}
		return nil, upstreamUnavailable("AI service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, upstreamUnavailable("AI service response interrupted", err)
	}

	mc.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("upstream call")

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("AI service returned status %d", resp.StatusCode)
		if detail := upstreamDetail(raw); detail != "" {
			msg += ": " + detail
		}
		return nil, upstreamError(resp.StatusCode, msg, nil)
	}

	if !json.Valid(raw) {
		return nil, upstreamError(http.StatusInternalServerError, "AI service returned malformed JSON", nil)
	}

	return &Result{Status: resp.StatusCode, Body: raw}, nil
}

// upstreamDetail pulls the FastAPI "detail" (or a "message") out of an error
// body so the caller sees why the call failed.
func upstreamDetail(raw []byte) string {
	var body struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok && s != "" {
		return s
	}
	return body.Message
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
