// Package source reads the DTF 90-day daily series from the central bank's
// SDMX REST service.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"dtfcapture/internal/logger"
	"dtfcapture/internal/series"
	"dtfcapture/pkg/circuitbreaker"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
	"dtfcapture/pkg/tracing"
)

const (
	agencyID  = "ESTAT"
	dataflow  = "DF_DTF_DAILY_HIST"
	version   = "1.0"
	bodyLimit = 2048

	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http    *http.Client
	baseURL string
	retry   *retry.Engine
	breaker *circuitbreaker.Breaker
	logger  logger.Logger
	now     func() time.Time
}

// NewClient builds the client. breaker may be nil.
func NewClient(cfg Config, engine *retry.Engine, breaker *circuitbreaker.Breaker, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: tracing.HTTPTransport(http.DefaultTransport)},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retry:   engine,
		breaker: breaker,
		logger:  log,
		now:     time.Now,
	}
}

// URL builds the data query. The service only honours whole years, so the
// window is the reference year plus one year on each side.
func (c *Client) URL(start, end *time.Time) string {
	ref := c.now().UTC()
	switch {
	case end != nil:
		ref = *end
	case start != nil:
		ref = *start
	}
	year := ref.Year()

	return fmt.Sprintf("%s/%s,%s,%s/all/ALL/?startPeriod=%04d&endPeriod=%04d&dimensionAtObservation=TIME_PERIOD&detail=full",
		c.baseURL, agencyID, dataflow, version, year-1, year+1)
}

// StreamDaily passes each observation to fn in document order. Only opening the
// response is retried: once observations have been emitted a broken body fails
// the call, so fn never sees the same observation twice.
func (c *Client) StreamDaily(ctx context.Context, start, end *time.Time, fn func(series.Observation) error) error {
	url := c.URL(start, end)

	body, err := retry.Execute(ctx, c.retry, retry.KindSourceFetch, "source.StreamDaily", func(ctx context.Context) (io.ReadCloser, error) {
		return circuitbreaker.Execute(ctx, c.breaker, func(ctx context.Context) (io.ReadCloser, error) {
			return c.open(ctx, url)
		})
	})
	if err != nil {
		return err
	}
	if body == nil {
		c.logger.InfowCtx(ctx, "Series not found at source", "method", "source.StreamDaily", "url", url)
		return nil
	}
	defer body.Close()

	count := 0
	err = series.Walk(body, func(o series.Observation) error {
		count++
		return fn(o)
	})
	if err != nil {
		return err
	}

	c.logger.InfowCtx(ctx, "Series fetched", "method", "source.StreamDaily", "observations", count)
	return nil
}

func (c *Client) FetchDaily(ctx context.Context, start, end *time.Time) ([]series.Observation, error) {
	var out []series.Observation
	err := c.StreamDaily(ctx, start, end, func(o series.Observation) error {
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	series.SortByDate(out)
	return out, nil
}

func (c *Client) FetchWeekly(ctx context.Context, start, end *time.Time) ([]series.Observation, error) {
	daily, err := c.FetchDaily(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return series.AggregateWeekly(daily), nil
}

// open returns the response body, or nil when the series does not exist.
func (c *Client) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return nil, pkgerrors.ErrSourceTimeout.WithCause(err)
		}
		return nil, fmt.Errorf("source request failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readSnippet(resp.Body)
		resp.Body.Close()
		details := map[string]interface{}{"status": resp.StatusCode, "body": detail}
		if retry.IsTransientStatus(resp.StatusCode) {
			return nil, pkgerrors.ErrSourceUnavailable.AsRetryable().WithDetails(details)
		}
		return nil, pkgerrors.ErrSourceRejected.AsFatal().WithDetails(details)
	}

	if !isXML(resp.Header.Get("Content-Type")) {
		detail := readSnippet(resp.Body)
		resp.Body.Close()
		return nil, pkgerrors.ErrSourceRejected.AsFatal().WithDetails(map[string]interface{}{
			"content_type": resp.Header.Get("Content-Type"),
			"status":       resp.StatusCode,
			"body":         detail,
		})
	}

	return resp.Body, nil
}

func isXML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.Contains(strings.ToLower(mediaType), "xml")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, bodyLimit))
	return string(b)
}
