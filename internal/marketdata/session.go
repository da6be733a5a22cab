package marketdata

import (
	"fmt"
	"time"

	"github.com/rewired-gh/trendmonster/internal/models"
)

// Session knows when daily and weekly bars become final.
type Session struct {
	loc         *time.Location
	dailyClose  time.Duration
	weeklyClose time.Duration
}

// NewSession parses the timezone and the "HH:MM" close times.
func NewSession(timezone, dailyClose, weeklyClose string) (*Session, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	daily, err := parseClock(dailyClose)
	if err != nil {
		return nil, fmt.Errorf("invalid daily close: %w", err)
	}
	weekly, err := parseClock(weeklyClose)
	if err != nil {
		return nil, fmt.Errorf("invalid weekly close: %w", err)
	}
	return &Session{loc: loc, dailyClose: daily, weeklyClose: weekly}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Location is the market timezone.
func (s *Session) Location() *time.Location {
	return s.loc
}

// ConfirmedAt is the instant a bar's close becomes final. Weekly bars close on
// the Friday of the week their date falls in.
func (s *Session) ConfirmedAt(bar models.Bar) time.Time {
	y, m, d := bar.Date.In(s.loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	if bar.Interval == models.Weekly {
		offset := (int(time.Friday) - int(day.Weekday()) + 7) % 7
		return day.AddDate(0, 0, offset).Add(s.weeklyClose)
	}
	return day.Add(s.dailyClose)
}

// Split separates the confirmed bars from the newest bar. Only confirmed bars
// may feed a decision; live is for display and is nil when bars is empty.
func (s *Session) Split(bars []models.Bar, now time.Time) (confirmed []models.Bar, live *models.Bar) {
	if len(bars) == 0 {
		return nil, nil
	}
	for _, b := range bars {
		if !now.Before(s.ConfirmedAt(b)) {
			confirmed = append(confirmed, b)
		}
	}
	last := bars[len(bars)-1]
	return confirmed, &last
}
