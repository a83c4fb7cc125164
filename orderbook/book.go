package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/ledger"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/pkg/id"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FillListener hears about every committed fill. It is called after the
// owner lock is released.
type FillListener interface {
	OnFill(ctx context.Context, t broker.Trade)
}

type Config struct {
	Store  broker.Store
	Ledger *ledger.Ledger
	// Locks defaults to a private table. Share it with anything else that
	// mutates owner state.
	Locks *Locks
	// Workers bounds how many owners a sweep evaluates at once.
	Workers int
	Logger  *zap.Logger
	NewID   func() string
	Now     func() time.Time
}

type Book struct {
	store    broker.Store
	ledger   *ledger.Ledger
	locks    *Locks
	pool     *ants.Pool
	log      *zap.Logger
	newID    func() string
	now      func() time.Time
	listener FillListener
}

func New(cfg Config) (*Book, error) {
	if cfg.Store == nil {
		return nil, errors.New("orderbook: store is required")
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(ledger.Options{})
	}
	if cfg.Locks == nil {
		cfg.Locks = NewLocks()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("orderbook: sweep pool: %w", err)
	}
	return &Book{
		store:  cfg.Store,
		ledger: cfg.Ledger,
		locks:  cfg.Locks,
		pool:   pool,
		log:    cfg.Logger,
		newID:  cfg.NewID,
		now:    cfg.Now,
	}, nil
}

// SetFillListener must be called before the book is shared.
func (b *Book) SetFillListener(l FillListener) { b.listener = l }

func (b *Book) Locks() *Locks { return b.locks }

func (b *Book) Close() {
	b.pool.Release()
}

// Eligible reports whether o may fill at price. Market orders always may;
// limit orders need the price at or through the limit in the owner's favour.
func Eligible(o broker.Order, price decimal.Decimal) bool {
	switch o.Type {
	case broker.Market:
		return true
	case broker.Limit:
		if o.LimitPrice == nil {
			return false
		}
		if o.Side == broker.Buy {
			return price.LessThanOrEqual(*o.LimitPrice)
		}
		return price.GreaterThanOrEqual(*o.LimitPrice)
	}
	return false
}

func validate(req *broker.OrderRequest) error {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Owner == "" {
		return broker.Invalid("owner", "required")
	}
	if req.Symbol == "" {
		return broker.Invalid("symbol", "required")
	}
	if !req.Side.Valid() {
		return broker.Invalid("side", "must be BUY or SELL, got %q", req.Side)
	}
	if !req.Type.Valid() {
		return broker.Invalid("type", "must be MARKET or LIMIT, got %q", req.Type)
	}
	if req.Qty <= 0 {
		return broker.Invalid("qty", "must be a positive integer, got %d", req.Qty)
	}
	switch req.Type {
	case broker.Limit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return broker.Invalid("limit_price", "a LIMIT order needs a positive limit price")
		}
		lp := market.Round(*req.LimitPrice)
		if !lp.IsPositive() {
			return broker.Invalid("limit_price", "rounds to zero")
		}
		req.LimitPrice = &lp
	case broker.Market:
		if req.LimitPrice != nil {
			return broker.Invalid("limit_price", "a MARKET order must not carry a limit price")
		}
	}
	return nil
}

// Submit validates req, records it as PENDING and evaluates it once against
// the current price, all in one transaction under the owner lock. A limit
// order that is not yet eligible stays PENDING for later sweeps.
func (b *Book) Submit(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := validate(&req); err != nil {
		return broker.Order{}, err
	}

	unlock := b.locks.Lock(req.Owner)
	var (
		o     broker.Order
		trade *broker.Trade
	)
	err := b.store.Update(ctx, func(tx broker.Tx) error {
		trade = nil
		if _, err := tx.GetAccount(req.Owner); err != nil {
			return err
		}
		in, err := tx.GetInstrument(req.Symbol)
		if err != nil {
			return err
		}

		now := b.now().UTC()
		o = broker.Order{
			ID:         b.newID(),
			Owner:      req.Owner,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Type:       req.Type,
			Qty:        req.Qty,
			LimitPrice: req.LimitPrice,
			Status:     broker.Pending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertOrder(o); err != nil {
			return err
		}
		if !Eligible(o, in.Price) {
			return nil
		}
		trade, err = b.ledger.Execute(tx, &o, in.Price)
		return err
	})
	unlock()
	if err != nil {
		return broker.Order{}, fmt.Errorf("submit order: %w", err)
	}

	b.log.Debug("order submitted",
		zap.String("order", o.ID),
		zap.String("owner", o.Owner),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.Int64("qty", o.Qty),
		zap.String("status", string(o.Status)),
		zap.String("reason", o.Reason),
	)
	if trade != nil {
		b.notify(ctx, *trade)
	}
	return o, nil
}

// Cancel cancels one of owner's PENDING orders. An order owned by someone
// else reads as not found.
func (b *Book) Cancel(ctx context.Context, owner, orderID string) (broker.Order, error) {
	unlock := b.locks.Lock(owner)
	defer unlock()

	var o broker.Order
	err := b.store.Update(ctx, func(tx broker.Tx) error {
		var err error
		o, err = tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if o.Owner != owner {
			return fmt.Errorf("order %q: %w", orderID, broker.ErrNotFound)
		}
		return b.ledger.Cancel(tx, &o)
	})
	if err != nil {
		return broker.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	b.log.Info("order cancelled", zap.String("order", o.ID), zap.String("owner", owner))
	return o, nil
}

// SweepResult summarises one Reevaluate call.
type SweepResult struct {
	Evaluated int
	// Trades are in ascending order id.
	Trades    []broker.Trade
	Cancelled []broker.Order
	Errors    []error
}

// Reevaluate checks every PENDING LIMIT order against q. Orders of one owner
// are evaluated in ascending id under that owner's lock; different owners
// run concurrently on the sweep pool. Each order gets its own transaction
// and is re-read first, so an order filled by an earlier sweep or a
// concurrent submit is skipped.
func (b *Book) Reevaluate(ctx context.Context, q market.Quotes) (SweepResult, error) {
	var pending []broker.Order
	err := b.store.View(ctx, func(tx broker.Tx) error {
		var err error
		pending, err = tx.ListOrders(broker.OrderFilter{Status: broker.Pending, Type: broker.Limit})
		return err
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("reevaluate: %w", err)
	}

	var owners []string
	byOwner := make(map[string][]string)
	for _, o := range pending {
		if _, ok := byOwner[o.Owner]; !ok {
			owners = append(owners, o.Owner)
		}
		byOwner[o.Owner] = append(byOwner[o.Owner], o.ID)
	}

	var (
		mu  sync.Mutex
		res SweepResult
		wg  sync.WaitGroup
	)
	for _, owner := range owners {
		owner, ids := owner, byOwner[owner]
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			r := b.sweepOwner(ctx, owner, ids, q)
			mu.Lock()
			res.Evaluated += r.Evaluated
			res.Trades = append(res.Trades, r.Trades...)
			res.Cancelled = append(res.Cancelled, r.Cancelled...)
			res.Errors = append(res.Errors, r.Errors...)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			res.Errors = append(res.Errors, fmt.Errorf("sweep %s: %w", owner, err))
			mu.Unlock()
		}
	}
	wg.Wait()

	sort.Slice(res.Trades, func(i, j int) bool { return res.Trades[i].OrderID < res.Trades[j].OrderID })
	sort.Slice(res.Cancelled, func(i, j int) bool { return res.Cancelled[i].ID < res.Cancelled[j].ID })

	for _, t := range res.Trades {
		b.notify(ctx, t)
	}
	if len(res.Trades) > 0 || len(res.Errors) > 0 {
		b.log.Info("sweep complete",
			zap.Int("pending", len(pending)),
			zap.Int("evaluated", res.Evaluated),
			zap.Int("filled", len(res.Trades)),
			zap.Int("cancelled", len(res.Cancelled)),
			zap.Int("errors", len(res.Errors)),
		)
	}
	return res, errors.Join(res.Errors...)
}

func (b *Book) sweepOwner(ctx context.Context, owner string, ids []string, q market.Quotes) SweepResult {
	unlock := b.locks.Lock(owner)
	defer unlock()

	var res SweepResult
	for _, oid := range ids {
		var (
			o     broker.Order
			trade *broker.Trade
			seen  bool
		)
		err := b.store.Update(ctx, func(tx broker.Tx) error {
			trade, seen = nil, false
			var err error
			if o, err = tx.GetOrder(oid); err != nil {
				return err
			}
			if o.Status != broker.Pending {
				return nil
			}
			price, ok := q.Price(o.Symbol)
			if !ok {
				return fmt.Errorf("no quote for %s", o.Symbol)
			}
			seen = true
			if !Eligible(o, price) {
				return nil
			}
			trade, err = b.ledger.Execute(tx, &o, price)
			return err
		})
		if err != nil {
			b.log.Error("reevaluate order", zap.String("order", oid), zap.String("owner", owner), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("order %s: %w", oid, err))
			continue
		}
		if seen {
			res.Evaluated++
		}
		switch {
		case trade != nil:
			res.Trades = append(res.Trades, *trade)
		case seen && o.Status == broker.Cancelled:
			res.Cancelled = append(res.Cancelled, o)
		}
	}
	return res
}

func (b *Book) notify(ctx context.Context, t broker.Trade) {
	if b.listener != nil {
		b.listener.OnFill(ctx, t)
	}
}
