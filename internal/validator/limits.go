package validator

import (
	"errors"
	"fmt"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Limits bounds the advertiser-provided assets of one text type per asset group
type Limits struct {
	Min    int
	Max    int
	MaxLen int
	// Warn is how close to Max an add starts warning.
	Warn int
}

// Rules are the per-group asset limits a validator enforces
type Rules struct {
	Text map[domain.TextType]Limits
	// MaxImages is the total image limit of an asset group.
	MaxImages int
}

// DefaultRules returns the platform's documented limits
func DefaultRules() Rules {
	return Rules{
		Text: map[domain.TextType]Limits{
			domain.Headline:     {Min: 3, Max: 15, MaxLen: 30, Warn: 2},
			domain.LongHeadline: {Min: 1, Max: 5, MaxLen: 90, Warn: 1},
			domain.Description:  {Min: 2, Max: 5, MaxLen: 90, Warn: 1},
		},
		MaxImages: 20,
	}
}

// Validate reports every inconsistent limit at once
func (r Rules) Validate() error {
	var errs []error
	for _, tt := range domain.TextTypes {
		l, ok := r.Text[tt]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: no limits", tt))
			continue
		}
		if l.Min < 0 || l.Max < 1 || l.Min > l.Max {
			errs = append(errs, fmt.Errorf("%s: need 0 <= min <= max and max >= 1 (min=%d, max=%d)", tt, l.Min, l.Max))
		}
		if l.MaxLen < 1 {
			errs = append(errs, fmt.Errorf("%s: max_len must be positive", tt))
		}
		if l.Warn < 0 || l.Warn > l.Max {
			errs = append(errs, fmt.Errorf("%s: warn must be between 0 and max", tt))
		}
	}
	if r.MaxImages < 1 {
		errs = append(errs, errors.New("max_images must be positive"))
	}
	return errors.Join(errs...)
}

func (r Rules) text(tt domain.TextType) Limits {
	if l, ok := r.Text[tt]; ok {
		return l
	}
	return DefaultRules().Text[tt]
}
