// Package marketdata fetches daily and weekly bar history and separates
// confirmed closes from the still-forming live bar.
package marketdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/rewired-gh/trendmonster/internal/logger"
	"github.com/rewired-gh/trendmonster/internal/models"
)

// ErrNoData is returned when the provider has no history for a symbol.
var ErrNoData = errors.New("no data")

// Source supplies bar history, oldest first.
type Source interface {
	FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Bar, error)
}

// ClientConfig holds transport tuning for the history endpoint.
type ClientConfig struct {
	MaxRetries      int
	RetryWait       time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client reads CSV history (Date,Open,High,Low,Close[,Volume]) from a
// stooq-compatible endpoint.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	loc     *time.Location
}

// NewClient creates a history client. Bar dates are interpreted in loc.
func NewClient(baseURL string, timeout time.Duration, loc *time.Location, cfg ClientConfig) *Client {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "marketdata",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{http: httpClient, breaker: breaker, loc: loc}
}

// FetchBars retrieves the full history of symbol at the given interval.
func (c *Client) FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Bar, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Accept", "text/csv").
			SetQueryParams(map[string]string{"s": symbol, "i": string(interval)}).
			Get("/q/d/l/")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", symbol, interval, err)
	}

	bars, err := parseCSV(bytes.NewReader(body.([]byte)), symbol, interval, c.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s/%s: %w", symbol, interval, err)
	}
	return bars, nil
}

// parseCSV decodes history rows, skipping rows that fail validation.
func parseCSV(r io.Reader, symbol string, interval models.Interval, loc *time.Location) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"date", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, ErrNoData
		}
	}

	field := func(rec []string, name string) (float64, error) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	}

	var bars []models.Bar
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if cols["date"] >= len(rec) {
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(rec[cols["date"]]), loc)
		if err != nil {
			continue
		}
		bar := models.Bar{Symbol: symbol, Interval: interval, Date: date}
		var parseErr error
		for _, p := range []struct {
			name string
			dst  *float64
		}{{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close}} {
			if *p.dst, parseErr = field(rec, p.name); parseErr != nil {
				break
			}
		}
		if parseErr != nil {
			continue
		}
		if bar.High == 0 && bar.Low == 0 {
			bar.High, bar.Low = bar.Close, bar.Close
		}
		if err := bar.Validate(); err != nil {
			logger.Debug("Skipping %s bar %s: %v", symbol, bar.Key(), err)
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
