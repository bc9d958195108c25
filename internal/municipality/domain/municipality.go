package municipality

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownMunicipality is returned for ids outside the supported set.
	ErrUnknownMunicipality = errors.New("municipality: unknown municipality")
	// ErrInvalidFee is returned when an annual fee is not positive.
	ErrInvalidFee = errors.New("municipality: annual fee must be positive")
)

// ID identifies a supported municipality. The set is closed.
type ID string

const (
	Nicosia   ID = "nicosia"
	Limassol  ID = "limassol"
	Larnaca   ID = "larnaca"
	Paphos    ID = "paphos"
	Strovolos ID = "strovolos"
)

// All returns every supported id in display order.
func All() []ID {
	return []ID{Nicosia, Limassol, Larnaca, Paphos, Strovolos}
}

// Valid reports whether id belongs to the supported set.
func (id ID) Valid() bool {
	switch id {
	case Nicosia, Limassol, Larnaca, Paphos, Strovolos:
		return true
	default:
		return false
	}
}

func (id ID) String() string { return string(id) }

// Parse normalizes raw input into an ID.
func Parse(raw string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMunicipality, raw)
	}
	return id, nil
}

// Municipality is an immutable fee schedule entry.
type Municipality struct {
	ID        ID
	Name      string
	NameEN    string
	AnnualFee decimal.Decimal
	Region    string
}

// defaultSchedule returns the built-in fee schedule for an id.
func defaultSchedule(id ID) Municipality {
	switch id {
	case Nicosia:
		return Municipality{ID: Nicosia, Name: "Δήμος Λευκωσίας", NameEN: "Nicosia Municipality", AnnualFee: decimal.RequireFromString("185.00"), Region: "Λευκωσία"}
	case Limassol:
		return Municipality{ID: Limassol, Name: "Δήμος Λεμεσού", NameEN: "Limassol Municipality", AnnualFee: decimal.RequireFromString("195.00"), Region: "Λεμεσός"}
	case Larnaca:
		return Municipality{ID: Larnaca, Name: "Δήμος Λάρνακας", NameEN: "Larnaca Municipality", AnnualFee: decimal.RequireFromString("175.00"), Region: "Λάρνακα"}
	case Paphos:
		return Municipality{ID: Paphos, Name: "Δήμος Πάφου", NameEN: "Paphos Municipality", AnnualFee: decimal.RequireFromString("180.00"), Region: "Πάφος"}
	case Strovolos:
		return Municipality{ID: Strovolos, Name: "Δήμος Στροβόλου", NameEN: "Strovolos Municipality", AnnualFee: decimal.RequireFromString("190.00"), Region: "Λευκωσία"}
	default:
		panic(fmt.Sprintf("municipality: no schedule for %q", id))
	}
}
