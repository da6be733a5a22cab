package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Holdings is the current portfolio allocation as fractions of equity.
// Whatever SPY and TQQQ do not cover is cash.
type Holdings struct {
	SPY       float64   `json:"spy" validate:"gte=0,lte=1"`
	TQQQ      float64   `json:"tqqq" validate:"gte=0,lte=1"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllCash is the allocation of an account holding no equity.
func AllCash() Holdings {
	return Holdings{}
}

// Cash returns the implied cash fraction.
func (h Holdings) Cash() float64 {
	return 1 - h.SPY - h.TQQQ
}

// Validate checks holdings constraints.
func (h *Holdings) Validate() error {
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("invalid holdings: %w", err)
	}
	if h.SPY+h.TQQQ > 1+1e-9 {
		return errors.New("invalid holdings: spy + tqqq must not exceed 1")
	}
	return nil
}

// ParseHoldings reads SPY and TQQQ weights given as fractions ("0.6") or
// percentages ("60%") and validates the result.
func ParseHoldings(spy, tqqq string) (Holdings, error) {
	var vals [2]float64
	for i, raw := range []string{spy, tqqq} {
		s, scale := strings.TrimSpace(raw), 1.0
		if strings.HasSuffix(s, "%") {
			s, scale = strings.TrimSuffix(s, "%"), 100
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Holdings{}, fmt.Errorf("invalid weight %q", raw)
		}
		vals[i] = v / scale
	}
	h := Holdings{SPY: vals[0], TQQQ: vals[1], UpdatedAt: time.Now()}
	if err := h.Validate(); err != nil {
		return Holdings{}, err
	}
	return h, nil
}
