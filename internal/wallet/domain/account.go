package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	municipality "wastefee-cloud/internal/municipality/domain"
)

// Account links a household property to a municipality. Only Verified
// changes after creation.
type Account struct {
	ID             string
	UserID         string
	PropertyNumber string
	MunicipalityID municipality.ID
	AnnualFee      decimal.Decimal
	OwnerName      string
	Address        string
	Verified       bool
	CreatedAt      time.Time
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// QRCode is the decoded content of a property QR code.
type QRCode struct {
	MunicipalityID municipality.ID
	PropertyNumber string
	Address        string
}

// ParseQRCode decodes MUNICIPALITY:PROPERTY_NUMBER[:ADDRESS].
func ParseQRCode(raw string) (QRCode, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 3)
	if len(parts) < 2 {
		return QRCode{}, fmt.Errorf("%w: qr code must be MUNICIPALITY:PROPERTY_NUMBER[:ADDRESS]", ErrInvalidArgument)
	}
	id, err := municipality.Parse(parts[0])
	if err != nil {
		return QRCode{}, fmt.Errorf("wallet: qr code: %w", err)
	}
	property := strings.TrimSpace(parts[1])
	if property == "" {
		return QRCode{}, fmt.Errorf("%w: empty property number", ErrInvalidArgument)
	}
	code := QRCode{MunicipalityID: id, PropertyNumber: property}
	if len(parts) == 3 {
		code.Address = strings.TrimSpace(parts[2])
	}
	return code, nil
}
