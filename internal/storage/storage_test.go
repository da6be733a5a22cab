package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/trendmonster/internal/models"
)

func newTestStorage(t *testing.T, maxBars int) *Storage {
	t.Helper()
	s, err := New(maxBars, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBars(symbol string, interval models.Interval, start time.Time, n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = models.Bar{
			Symbol:   symbol,
			Interval: interval,
			Date:     start.AddDate(0, 0, i),
			Open:     c - 1,
			High:     c + 1,
			Low:      c - 2,
			Close:    c,
		}
	}
	return bars
}

func TestStorage_UpsertAndLoadBars(t *testing.T) {
	s := newTestStorage(t, 100)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertBars(testBars("^vix", models.Daily, start, 5)); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	bars, err := s.LoadBars("^vix", models.Daily)
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("got %d bars, want 5", len(bars))
	}
	if !bars[0].Date.Equal(start) {
		t.Errorf("first bar date = %v, want %v", bars[0].Date, start)
	}
	if bars[4].Close != 104 {
		t.Errorf("last close = %f, want 104", bars[4].Close)
	}
}

func TestStorage_UpsertReplacesSameDate(t *testing.T) {
	s := newTestStorage(t, 100)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	bars := testBars("spy.us", models.Weekly, start, 1)
	if err := s.UpsertBars(bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	bars[0].Close = 123
	bars[0].High = 124
	if err := s.UpsertBars(bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	got, _ := s.LoadBars("spy.us", models.Weekly)
	if len(got) != 1 || got[0].Close != 123 {
		t.Errorf("expected one replaced bar with close 123, got %+v", got)
	}
}

func TestStorage_SeriesAreSeparate(t *testing.T) {
	s := newTestStorage(t, 100)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	_ = s.UpsertBars(testBars("^vix", models.Daily, start, 3))
	_ = s.UpsertBars(testBars("^vix3m", models.Daily, start, 2))

	vix, _ := s.LoadBars("^vix", models.Daily)
	vix3m, _ := s.LoadBars("^vix3m", models.Daily)
	weekly, _ := s.LoadBars("^vix", models.Weekly)
	if len(vix) != 3 || len(vix3m) != 2 || len(weekly) != 0 {
		t.Errorf("got %d/%d/%d bars, want 3/2/0", len(vix), len(vix3m), len(weekly))
	}
}

func TestStorage_UpsertRejectsInvalidBar(t *testing.T) {
	s := newTestStorage(t, 100)
	bad := []models.Bar{{Symbol: "^vix", Interval: models.Daily, Date: time.Now(), Close: -1}}
	if err := s.UpsertBars(bad); err == nil {
		t.Error("expected error for invalid bar")
	}
}

func TestStorage_UpsertEnforcesMaxBars(t *testing.T) {
	s := newTestStorage(t, 3)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertBars(testBars("^vix", models.Daily, start, 10)); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	bars, _ := s.LoadBars("^vix", models.Daily)
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if bars[0].Close != 107 {
		t.Errorf("oldest kept close = %f, want 107", bars[0].Close)
	}
}

func TestStorage_RotateBars(t *testing.T) {
	s := newTestStorage(t, 0)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.UpsertBars(testBars("^vix", models.Daily, start, 6))
	_ = s.UpsertBars(testBars("spy.us", models.Weekly, start, 4))

	s.maxBarsPerSeries = 2
	if err := s.RotateBars(); err != nil {
		t.Fatalf("RotateBars: %v", err)
	}
	vix, _ := s.LoadBars("^vix", models.Daily)
	spy, _ := s.LoadBars("spy.us", models.Weekly)
	if len(vix) != 2 || len(spy) != 2 {
		t.Errorf("got %d/%d bars after rotation, want 2/2", len(vix), len(spy))
	}
}

func TestStorage_Holdings(t *testing.T) {
	s := newTestStorage(t, 10)

	if _, err := s.LoadHoldings(); !errors.Is(err, ErrNoHoldings) {
		t.Fatalf("expected ErrNoHoldings, got %v", err)
	}

	h := &models.Holdings{SPY: 0.6, TQQQ: 0.4}
	if err := s.SaveHoldings(h); err != nil {
		t.Fatalf("SaveHoldings: %v", err)
	}
	if h.UpdatedAt.IsZero() {
		t.Error("SaveHoldings should stamp UpdatedAt")
	}

	got, err := s.LoadHoldings()
	if err != nil {
		t.Fatalf("LoadHoldings: %v", err)
	}
	if got.SPY != 0.6 || got.TQQQ != 0.4 {
		t.Errorf("got %+v, want spy=0.6 tqqq=0.4", got)
	}

	if err := s.SaveHoldings(&models.Holdings{SPY: 0.9, TQQQ: 0.9}); err == nil {
		t.Error("expected error for over-allocated holdings")
	}
}
