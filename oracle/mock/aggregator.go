// Package mock provides an in-process price aggregator for local development
// and tests. It reports a fixed answer with a declared precision until told
// otherwise, in the manner of a mock V3 aggregator deployed on a dev chain.
package mock

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/xraph/fundme/oracle"
)

// Defaults used on development networks.
const (
	DefaultDecimals uint8 = 8
)

// DefaultInitialAnswer is 2000.00000000 at DefaultDecimals.
var DefaultInitialAnswer = big.NewInt(2000_00000000)

var _ oracle.PriceFeed = (*Aggregator)(nil)

// Aggregator is a settable price feed.
type Aggregator struct {
	mu        sync.RWMutex
	decimals  uint8
	answer    *big.Int
	roundID   uint64
	updatedAt time.Time
	err       error
	reads     int
}

// New creates an Aggregator with the given precision and first answer.
// A nil answer reads as zero, which conversion rejects.
func New(decimals uint8, initialAnswer *big.Int) *Aggregator {
	a := &Aggregator{decimals: decimals, answer: new(big.Int)}
	a.UpdateAnswer(initialAnswer)
	return a
}

// NewDefault creates an Aggregator with DefaultDecimals and DefaultInitialAnswer.
func NewDefault() *Aggregator {
	return New(DefaultDecimals, DefaultInitialAnswer)
}

// LatestPrice implements oracle.PriceFeed.
func (a *Aggregator) LatestPrice(_ context.Context) (oracle.Price, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reads++
	if a.err != nil {
		return oracle.Price{}, a.err
	}
	return oracle.Price{
		Answer:    new(big.Int).Set(a.answer),
		Decimals:  a.decimals,
		RoundID:   a.roundID,
		UpdatedAt: a.updatedAt,
	}, nil
}

// Decimals returns the declared precision.
func (a *Aggregator) Decimals() uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.decimals
}

// UpdateAnswer starts a new round with answer.
func (a *Aggregator) UpdateAnswer(answer *big.Int) {
	a.UpdateRoundData(0, answer, time.Now().UTC())
}

// UpdateRoundData sets the answer for an explicit round. A zero roundID
// advances to the next round. A nil answer keeps the previous one.
func (a *Aggregator) UpdateRoundData(roundID uint64, answer *big.Int, updatedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if roundID == 0 {
		roundID = a.roundID + 1
	}
	a.roundID = roundID
	if answer != nil {
		a.answer = new(big.Int).Set(answer)
	}
	a.updatedAt = updatedAt
}

// FailWith makes subsequent reads return err. Pass nil to recover.
func (a *Aggregator) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Reads returns how many times LatestPrice has been called.
func (a *Aggregator) Reads() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reads
}
