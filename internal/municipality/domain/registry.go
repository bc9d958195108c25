package municipality

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Registry is a read-only lookup of fee schedules. Safe for concurrent use.
type Registry struct {
	byID map[ID]Municipality
}

// FeeOverride replaces the default annual fee or names of one municipality.
type FeeOverride struct {
	ID        ID
	AnnualFee decimal.Decimal
	Name      string
	NameEN    string
	Region    string
}

// NewRegistry builds a registry from the built-in schedule with optional overrides.
func NewRegistry(overrides ...FeeOverride) (*Registry, error) {
	byID := make(map[ID]Municipality, len(All()))
	for _, id := range All() {
		byID[id] = defaultSchedule(id)
	}
	for _, o := range overrides {
		if !o.ID.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMunicipality, o.ID)
		}
		m := byID[o.ID]
		if !o.AnnualFee.IsZero() {
			if !o.AnnualFee.IsPositive() {
				return nil, fmt.Errorf("%w: %s=%s", ErrInvalidFee, o.ID, o.AnnualFee)
			}
			m.AnnualFee = o.AnnualFee.Round(2)
		}
		if o.Name != "" {
			m.Name = o.Name
		}
		if o.NameEN != "" {
			m.NameEN = o.NameEN
		}
		if o.Region != "" {
			m.Region = o.Region
		}
		byID[o.ID] = m
	}
	return &Registry{byID: byID}, nil
}

// DefaultRegistry returns the built-in schedule.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry()
	return r
}

// Get returns the municipality for id.
func (r *Registry) Get(id ID) (Municipality, error) {
	m, ok := r.byID[id]
	if !ok {
		return Municipality{}, fmt.Errorf("%w: %q", ErrUnknownMunicipality, id)
	}
	return m, nil
}

// AnnualFee returns the current annual fee for id.
func (r *Registry) AnnualFee(id ID) (decimal.Decimal, error) {
	m, err := r.Get(id)
	if err != nil {
		return decimal.Zero, err
	}
	return m.AnnualFee, nil
}

// List returns all municipalities in display order.
func (r *Registry) List() []Municipality {
	result := make([]Municipality, 0, len(r.byID))
	for _, id := range All() {
		if m, ok := r.byID[id]; ok {
			result = append(result, m)
		}
	}
	return result
}
