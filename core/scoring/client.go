package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const completePath = "/api/run/stage/complete"

// Client scores stages against a remote backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Score(ctx context.Context, req Request) (StageResult, error) {
	ctx, span := tracer.Start(ctx, "score stage")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", req.RunID),
		attribute.String("stage.id", req.StageID),
		attribute.Int("transcript.turns", len(req.Transcript)),
	)

	body, err := json.Marshal(req)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return StageResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completePath, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return StageResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
		span.RecordError(err)
		return StageResult{}, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: non-OK HTTP status: %s", ErrScoringUnavailable, resp.Status)
		span.RecordError(err)
		return StageResult{}, err
	}

	var result StageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		err = fmt.Errorf("%w: error decoding response: %v", ErrScoringUnavailable, err)
		span.RecordError(err)
		return StageResult{}, err
	}

	span.SetAttributes(
		attribute.Int("result.stars", result.Stars),
		attribute.Int64("result.money_raised", result.MoneyRaised),
	)
	return result, nil
}
