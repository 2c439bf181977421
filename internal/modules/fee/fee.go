package fee

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketpay/internal/domain"
)

var DefaultRate = decimal.RequireFromString("0.10")

// Split divides gross into the platform fee and the recipient's share.
// The fee is gross*rate rounded half up to a whole minor unit.
func Split(gross int64, rate decimal.Decimal) (platformFee, recipientAmount int64, err error) {
	if gross < 0 {
		return 0, 0, fmt.Errorf("%w: gross %d is negative", domain.ErrInvalidAmount, gross)
	}
	if err := validateRate(rate); err != nil {
		return 0, 0, err
	}
	platformFee = decimal.NewFromInt(gross).Mul(rate).Round(0).IntPart()
	return platformFee, gross - platformFee, nil
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee rate %s outside [0, 1)", domain.ErrInvalidAmount, rate)
	}
	return nil
}

// Breakdown is one fee split ready to be written to a Payment or Invoice.
type Breakdown struct {
	Gross           int64
	PlatformFee     int64
	RecipientAmount int64
}

// Policy carries the configured platform fee rate.
type Policy struct {
	rate decimal.Decimal
}

func NewPolicy(rate decimal.Decimal) (*Policy, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	return &Policy{rate: rate}, nil
}

func (p *Policy) Rate() decimal.Decimal { return p.rate }

func (p *Policy) Split(gross int64) (Breakdown, error) {
	platformFee, recipientAmount, err := Split(gross, p.rate)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{Gross: gross, PlatformFee: platformFee, RecipientAmount: recipientAmount}, nil
}

// ScaleFee rescales a fee quoted for requested onto a partial captured amount.
func ScaleFee(quotedFee, requested, captured int64) int64 {
	if requested <= 0 || requested == captured {
		return quotedFee
	}
	return decimal.NewFromInt(quotedFee).
		Mul(decimal.NewFromInt(captured)).
		Div(decimal.NewFromInt(requested)).
		Round(0).
		IntPart()
}
