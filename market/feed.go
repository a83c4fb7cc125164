package market

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source draws the random walk. *rand.Rand satisfies it.
type Source interface {
	Int63n(n int64) int64
}

type FeedConfig struct {
	// MaxStep bounds a single tick's move in either direction, inclusive.
	MaxStep decimal.Decimal
	// MinPrice is the floor every price is clamped to.
	MinPrice decimal.Decimal
	// Seed feeds the default Source when Source is nil. Zero draws a seed
	// from crypto/rand.
	Seed   int64
	Source Source
	// Starter overrides the default instrument set seeded into an empty store.
	Starter []broker.Instrument
	Logger  *zap.Logger
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		MaxStep:  decimal.RequireFromString("0.50"),
		MinPrice: decimal.RequireFromString("0.01"),
	}
}

func randomSeed() int64 {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}

// Feed owns instrument prices. Seeding happens on first use, and ticks are
// serialized so each one reads the prices the previous one wrote.
type Feed struct {
	mu       sync.Mutex
	store    broker.Store
	rng      Source
	maxCents int64
	minPrice decimal.Decimal
	starter  []broker.Instrument
	seeded   bool
	log      *zap.Logger
}

func NewFeed(store broker.Store, cfg FeedConfig) *Feed {
	rng := cfg.Source
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = randomSeed()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	starter := cfg.Starter
	if starter == nil {
		starter = Starter
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		store:    store,
		rng:      rng,
		maxCents: cfg.MaxStep.Shift(Places).IntPart(),
		minPrice: Round(cfg.MinPrice),
		starter:  starter,
		log:      log,
	}
}

// Seed populates the starter set if the store has no instruments. It is a
// no-op after the first successful call, and never inserts into a store that
// already holds instruments.
func (f *Feed) Seed(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seedLocked(ctx)
}

func (f *Feed) seedLocked(ctx context.Context) error {
	if f.seeded {
		return nil
	}
	inserted := 0
	err := f.store.Update(ctx, func(tx broker.Tx) error {
		n, err := tx.CountInstruments()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, in := range f.starter {
			in.Price = Round(in.Price)
			if err := tx.InsertInstrument(in); err != nil {
				return fmt.Errorf("seed %s: %w", in.Symbol, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return err
	}
	if inserted > 0 {
		f.log.Info("seeded instruments", zap.Int("count", inserted))
	}
	f.seeded = true
	return nil
}

// Instruments lists every instrument in symbol order.
func (f *Feed) Instruments(ctx context.Context) ([]broker.Instrument, error) {
	if err := f.Seed(ctx); err != nil {
		return nil, err
	}
	var out []broker.Instrument
	err := f.store.View(ctx, func(tx broker.Tx) error {
		var err error
		out, err = tx.ListInstruments()
		return err
	})
	return out, err
}

// Snapshot returns the current prices.
func (f *Feed) Snapshot(ctx context.Context) (Quotes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.seedLocked(ctx); err != nil {
		return nil, err
	}
	var q Quotes
	err := f.store.View(ctx, func(tx broker.Tx) error {
		ins, err := tx.ListInstruments()
		if err != nil {
			return err
		}
		q = QuotesOf(ins)
		return nil
	})
	return q, err
}

// Tick moves every price by a uniform whole number of cents in
// [-MaxStep, +MaxStep], clamps to MinPrice and persists all new prices in
// one transaction. Instruments are visited in symbol order so a seeded
// Source yields the same walk every run.
func (f *Feed) Tick(ctx context.Context) (Quotes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.seedLocked(ctx); err != nil {
		return nil, err
	}

	var q Quotes
	err := f.store.Update(ctx, func(tx broker.Tx) error {
		ins, err := tx.ListInstruments()
		if err != nil {
			return err
		}
		q = make(Quotes, len(ins))
		for _, in := range ins {
			next := f.step(in.Price)
			if err := tx.SetPrice(in.Symbol, next); err != nil {
				return err
			}
			q[in.Symbol] = next
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}
	return q, nil
}

func (f *Feed) step(price decimal.Decimal) decimal.Decimal {
	var cents int64
	if f.maxCents > 0 {
		cents = f.rng.Int63n(2*f.maxCents+1) - f.maxCents
	}
	next := Round(price.Add(decimal.New(cents, -Places)))
	if next.LessThan(f.minPrice) {
		next = f.minPrice
	}
	return next
}

// SetPrice overrides one instrument's price.
func (f *Feed) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return broker.Invalid("price", "must be positive, got %s", price)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.seedLocked(ctx); err != nil {
		return err
	}
	return f.store.Update(ctx, func(tx broker.Tx) error {
		if _, err := tx.GetInstrument(symbol); err != nil {
			return err
		}
		return tx.SetPrice(symbol, Round(price))
	})
}
