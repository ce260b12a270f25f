package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orian/signalquery/models"
	"github.com/sirupsen/logrus"
)

// ErrExecutorDisabled is returned when no execution engine is configured.
var ErrExecutorDisabled = errors.New("no query executor configured")

// KindMismatchError reports a result whose kind differs from the request.
type KindMismatchError struct {
	Requested models.SpecMode
	Returned  models.SpecMode
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("executor returned a %s result for a %s query", e.Returned, e.Requested)
}

// Executor forwards execute requests to the execution engine over HTTP.
type Executor struct {
	url    string
	client *http.Client
	log    logrus.FieldLogger
}

// NewExecutor creates an Executor posting to url. An empty url yields an
// executor that rejects every request with ErrExecutorDisabled.
func NewExecutor(cfg ExecutorConfig, log logrus.FieldLogger) *Executor {
	return &Executor{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithField("component", "executor"),
	}
}

// Execute sends req and returns the decoded result. The result kind must
// match the kind of the request's spec.
func (e *Executor) Execute(ctx context.Context, req *models.ExecuteRequest) (result *models.ExecuteResult, err error) {
	if e.url == "" {
		return nil, ErrExecutorDisabled
	}

	source, mode := string(req.Spec.Source()), string(req.Spec.Kind())
	start := time.Now()
	defer func() {
		ExecutionsTotal.WithLabelValues(source, mode, statusLabel(err)).Inc()
		ExecutionDuration.WithLabelValues(source, mode).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	e.log.WithFields(logrus.Fields{
		"source": source,
		"mode":   mode,
		"start":  req.StartTime,
		"end":    req.EndTime,
	}).Debug("Executing query")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling executor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("executor returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var res models.ExecuteResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding executor response: %w", err)
	}

	if res.Kind != req.Spec.Kind() {
		return nil, &KindMismatchError{Requested: req.Spec.Kind(), Returned: res.Kind}
	}

	return &res, nil
}
