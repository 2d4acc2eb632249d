// Package oracle defines the price-feed capability fundme consumes and the
// fixed-point conversion of native amounts into USD-equivalent values.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xraph/fundme/types"
)

// ErrInvalidPrice is returned when a feed reports a missing or non-positive answer.
var ErrInvalidPrice = errors.New("oracle: invalid price")

// Price is one reading of a feed. Answer is an integer carrying Decimals
// fractional digits: 2000.00000000 with 8 decimals is Answer=200000000000.
type Price struct {
	Answer    *big.Int  `json:"answer"`
	Decimals  uint8     `json:"decimals"`
	RoundID   uint64    `json:"round_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceFeed is the only capability fundme needs from an oracle: read the
// latest price together with its declared precision.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (Price, error)
}

// PriceFeedFunc adapts a plain function to a PriceFeed.
type PriceFeedFunc func(ctx context.Context) (Price, error)

// LatestPrice implements PriceFeed.
func (f PriceFeedFunc) LatestPrice(ctx context.Context) (Price, error) {
	return f(ctx)
}

// Validate rejects prices that cannot be used for conversion.
func (p Price) Validate() error {
	if p.Answer == nil || p.Answer.Sign() <= 0 {
		return fmt.Errorf("%w: answer %v", ErrInvalidPrice, p.Answer)
	}
	return nil
}

// USDValue converts a native amount (types.NativeDecimals digits) into a USD
// value with types.USDDecimals digits.
//
// usd = amount * answer * 10^18 / (10^decimals * 10^18) = amount * answer / 10^decimals.
// The single division happens after every multiplication, so marginal
// contributions near a threshold are never truncated early.
func (p Price) USDValue(amount types.Amount) (types.Amount, error) {
	if err := p.Validate(); err != nil {
		return types.Zero(), err
	}
	return amount.MulDiv(p.Answer, types.Pow10(int(p.Decimals))), nil
}

// ConversionRate reads the latest price from feed and converts amount with it.
func ConversionRate(ctx context.Context, feed PriceFeed, amount types.Amount) (types.Amount, Price, error) {
	p, err := feed.LatestPrice(ctx)
	if err != nil {
		return types.Zero(), Price{}, err
	}
	usd, err := p.USDValue(amount)
	if err != nil {
		return types.Zero(), p, err
	}
	return usd, p, nil
}
