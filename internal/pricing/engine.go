// Package pricing computes stay totals from a base nightly price and owner
// price overrides.
package pricing

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy decides how overlapping overrides combine.
type Policy string

const (
	// PolicyCumulative applies every override's adjustment independently, so
	// nights covered by two overrides are adjusted twice.
	PolicyCumulative Policy = "cumulative"
	// PolicyLastWins prices each night with the last applicable override in
	// query order.
	PolicyLastWins Policy = "last-wins"
)

// ParsePolicy accepts the configured policy name; empty means cumulative.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyCumulative:
		return PolicyCumulative, nil
	case PolicyLastWins:
		return PolicyLastWins, nil
	}
	return "", domain.InvalidInputf("unknown override policy %q", s)
}

type Engine struct {
	policy Policy
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{policy: PolicyCumulative}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Total prices r at base per night with the given overrides applied.
// Overrides that are unavailable or carry no price are ignored.
func (e *Engine) Total(base domain.Money, r domain.DateRange, overrides []domain.AvailabilityOverride) (domain.Money, error) {
	if base.IsNegative() {
		return decimal.Zero, errors.Wrapf(domain.ErrNegativePrice, "base price %s", base)
	}
	nights, err := r.Nights()
	if err != nil {
		return decimal.Zero, err
	}
	applicable := make([]domain.AvailabilityOverride, 0, len(overrides))
	for _, o := range overrides {
		if !o.Prices() {
			continue
		}
		if o.PriceOverride.IsNegative() {
			return decimal.Zero, errors.Wrapf(domain.ErrNegativePrice, "override %s price %s", o.ID, *o.PriceOverride)
		}
		applicable = append(applicable, o)
	}

	if e.policy == PolicyLastWins {
		return lastWins(base, r, applicable), nil
	}
	return cumulative(base, r, nights, applicable), nil
}

func cumulative(base domain.Money, r domain.DateRange, nights int, overrides []domain.AvailabilityOverride) domain.Money {
	total := base.Mul(decimal.NewFromInt(int64(nights)))
	for _, o := range overrides {
		overlap, ok := r.Intersect(o.Range)
		if !ok {
			continue
		}
		n, err := overlap.Nights()
		if err != nil || n <= 0 {
			continue
		}
		count := decimal.NewFromInt(int64(n))
		total = total.Sub(base.Mul(count)).Add(o.PriceOverride.Mul(count))
	}
	return total
}

func lastWins(base domain.Money, r domain.DateRange, overrides []domain.AvailabilityOverride) domain.Money {
	dates := r.Dates()
	nightly := make([]domain.Money, len(dates))
	for i := range nightly {
		nightly[i] = base
	}
	for _, o := range overrides {
		for i, d := range dates {
			if o.Range.Contains(d) {
				nightly[i] = *o.PriceOverride
			}
		}
	}
	total := decimal.Zero
	for _, p := range nightly {
		total = total.Add(p)
	}
	return total
}
