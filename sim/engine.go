package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/journal"
	"github.com/rustyeddy/paper/ledger"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/orderbook"
	"github.com/rustyeddy/paper/schedule"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultStartingCash is the balance a new account opens with.
var DefaultStartingCash = decimal.RequireFromString("100000.00")

// ErrPartialSweep marks a tick whose prices moved but where some pending
// orders could not be evaluated. TickReport.Errors lists them.
var ErrPartialSweep = errors.New("sweep incomplete")

type Options struct {
	Store        broker.Store
	Feed         market.FeedConfig
	StartingCash decimal.Decimal
	SellOverflow ledger.SellOverflow
	// AllowOverdraft lets scheduled withdrawals take cash below zero.
	AllowOverdraft bool
	SweepWorkers   int
	Journal        journal.Journal
	Logger         *zap.Logger
	Now            func() time.Time
}

// Engine is the service surface over the ledger. It owns the price feed,
// the order book and the cash job and keeps them on one lock table.
type Engine struct {
	tickMu sync.Mutex

	store        broker.Store
	feed         *market.Feed
	ledger       *ledger.Ledger
	book         *orderbook.Book
	cash         *schedule.Job
	locks        *orderbook.Locks
	journal      journal.Journal
	log          *zap.Logger
	startingCash decimal.Decimal
	now          func() time.Time
}

var _ broker.Broker = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("sim: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartingCash.IsZero() {
		opts.StartingCash = DefaultStartingCash
	}
	if opts.StartingCash.IsNegative() {
		return nil, fmt.Errorf("sim: starting cash %s is negative", opts.StartingCash)
	}
	if opts.Feed.Logger == nil {
		opts.Feed.Logger = opts.Logger.Named("feed")
	}

	l := ledger.New(ledger.Options{SellOverflow: opts.SellOverflow, Now: opts.Now})
	locks := orderbook.NewLocks()
	book, err := orderbook.New(orderbook.Config{
		Store:   opts.Store,
		Ledger:  l,
		Locks:   locks,
		Workers: opts.SweepWorkers,
		Logger:  opts.Logger.Named("book"),
		Now:     opts.Now,
	})
	if err != nil {
		return nil, err
	}
	cash, err := schedule.New(schedule.Config{
		Store:          opts.Store,
		Locks:          locks,
		AllowOverdraft: opts.AllowOverdraft,
		Logger:         opts.Logger.Named("cash"),
	})
	if err != nil {
		book.Close()
		return nil, err
	}

	e := &Engine{
		store:        opts.Store,
		feed:         market.NewFeed(opts.Store, opts.Feed),
		ledger:       l,
		book:         book,
		cash:         cash,
		locks:        locks,
		journal:      opts.Journal,
		log:          opts.Logger,
		startingCash: market.Round(opts.StartingCash),
		now:          opts.Now,
	}
	book.SetFillListener(e)
	return e, nil
}

// Close stops the sweep pool and closes the journal. The store belongs to
// the caller.
func (e *Engine) Close() error {
	e.book.Close()
	return e.journal.Close()
}

func (e *Engine) StartingCash() decimal.Decimal { return e.startingCash }

func (e *Engine) SellOverflow() ledger.SellOverflow { return e.ledger.SellOverflow() }

func cleanOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", broker.Invalid("owner", "required")
	}
	return owner, nil
}

func (e *Engine) OpenAccount(ctx context.Context, owner string) (broker.Account, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return broker.Account{}, err
	}
	a := broker.Account{Owner: owner, Cash: e.startingCash, CreatedAt: e.now().UTC()}
	if err := e.store.Update(ctx, func(tx broker.Tx) error {
		return tx.InsertAccount(a)
	}); err != nil {
		return broker.Account{}, fmt.Errorf("open account: %w", err)
	}
	e.log.Info("account opened", zap.String("owner", owner), zap.String("cash", market.Format(a.Cash)))
	return a, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if err := e.feed.Seed(ctx); err != nil {
		return broker.OrderResult{}, err
	}
	o, err := e.book.Submit(ctx, req)
	if err != nil {
		return broker.OrderResult{}, err
	}
	return broker.OrderResult{OrderID: o.ID, Status: o.Status, Reason: o.Reason}, nil
}

func (e *Engine) CancelOrder(ctx context.Context, owner, orderID string) (broker.Order, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return broker.Order{}, err
	}
	return e.book.Cancel(ctx, owner, orderID)
}

// TickReport is what one tick did.
type TickReport struct {
	Quotes    market.Quotes  `json:"quotes"`
	Filled    []broker.Trade `json:"filled"`
	Cancelled []broker.Order `json:"cancelled"`
	Errors    []string       `json:"errors,omitempty"`
}

// Tick advances every price once and sweeps the pending limit orders
// against the new prices. Ticks never overlap. Sweep failures for single
// orders are reported in the result and in an error wrapping
// ErrPartialSweep; the prices have moved either way.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	q, err := e.feed.Tick(ctx)
	if err != nil {
		return TickReport{}, err
	}
	res, err := e.book.Reevaluate(ctx, q)
	if err != nil && len(res.Errors) > 0 {
		err = fmt.Errorf("%w: %w", ErrPartialSweep, err)
	}
	rep := TickReport{Quotes: q, Filled: res.Trades, Cancelled: res.Cancelled}
	for _, sweepErr := range res.Errors {
		rep.Errors = append(rep.Errors, sweepErr.Error())
	}
	e.log.Debug("tick",
		zap.Int("instruments", len(q)),
		zap.Int("filled", len(rep.Filled)),
		zap.Int("cancelled", len(rep.Cancelled)),
	)
	return rep, err
}

func (e *Engine) TickMarket(ctx context.Context) error {
	_, err := e.Tick(ctx)
	return err
}

// Run ticks every interval until ctx is done. Tick errors are logged and
// the loop keeps going.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sim: tick interval must be positive, got %s", interval)
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	e.log.Info("market running", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("market stopped")
			return ctx.Err()
		case <-t.C:
			if err := e.TickMarket(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("tick failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) Instruments(ctx context.Context) ([]broker.Instrument, error) {
	return e.feed.Instruments(ctx)
}

// SetPrice overrides one instrument's price without a tick.
func (e *Engine) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	return e.feed.SetPrice(ctx, strings.ToUpper(symbol), price)
}

func (e *Engine) GetAccount(ctx context.Context, owner string) (broker.Account, error) {
	var a broker.Account
	err := e.store.View(ctx, func(tx broker.Tx) error {
		var err error
		a, err = tx.GetAccount(owner)
		return err
	})
	return a, err
}

// view runs fn after checking owner has an account.
func (e *Engine) view(ctx context.Context, owner string, fn func(broker.Tx) error) error {
	return e.store.View(ctx, func(tx broker.Tx) error {
		if _, err := tx.GetAccount(owner); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (e *Engine) GetPositions(ctx context.Context, owner string) ([]broker.Position, error) {
	var out []broker.Position
	err := e.view(ctx, owner, func(tx broker.Tx) error {
		var err error
		out, err = tx.ListPositions(owner)
		return err
	})
	return out, err
}

// GetOrders returns every order of owner, oldest first.
func (e *Engine) GetOrders(ctx context.Context, owner string) ([]broker.Order, error) {
	var out []broker.Order
	err := e.view(ctx, owner, func(tx broker.Tx) error {
		var err error
		out, err = tx.ListOrders(broker.OrderFilter{Owner: owner})
		return err
	})
	return out, err
}

func (e *Engine) GetTrades(ctx context.Context, owner string) ([]broker.Trade, error) {
	var out []broker.Trade
	err := e.view(ctx, owner, func(tx broker.Tx) error {
		var err error
		out, err = tx.ListTrades(owner)
		return err
	})
	return out, err
}

// Holding is a position marked to the current price.
type Holding struct {
	broker.Position
	Price        decimal.Decimal `json:"price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

type Valuation struct {
	Owner    string          `json:"owner"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings []Holding       `json:"holdings"`
	// Market is Σ qty × current price.
	Market decimal.Decimal `json:"market_value"`
	Equity decimal.Decimal `json:"equity"`
}

// Valuation marks owner's book to market in one consistent read.
func (e *Engine) Valuation(ctx context.Context, owner string) (Valuation, error) {
	var v Valuation
	err := e.store.View(ctx, func(tx broker.Tx) error {
		var err error
		v, err = valueOf(tx, owner)
		return err
	})
	return v, err
}

func valueOf(tx broker.Tx, owner string) (Valuation, error) {
	a, err := tx.GetAccount(owner)
	if err != nil {
		return Valuation{}, err
	}
	ps, err := tx.ListPositions(owner)
	if err != nil {
		return Valuation{}, err
	}
	v := Valuation{Owner: owner, Cash: a.Cash, Market: decimal.Zero}
	for _, p := range ps {
		in, err := tx.GetInstrument(p.Symbol)
		if err != nil {
			return Valuation{}, err
		}
		mv := market.Notional(in.Price, p.Qty)
		v.Holdings = append(v.Holdings, Holding{
			Position:     p,
			Price:        in.Price,
			MarketValue:  mv,
			UnrealizedPL: mv.Sub(market.Notional(p.AvgPrice, p.Qty)),
		})
		v.Market = v.Market.Add(mv)
	}
	v.Equity = v.Cash.Add(v.Market)
	return v, nil
}

func (e *Engine) ScheduleCashTransaction(ctx context.Context, owner string, typ broker.CashType, amount decimal.Decimal, on time.Time) (broker.CashTransaction, error) {
	return e.cash.Schedule(ctx, owner, typ, amount, on)
}

func (e *Engine) CashTransactions(ctx context.Context, owner string) ([]broker.CashTransaction, error) {
	return e.cash.List(ctx, owner)
}

// ApplyDue settles owner's cash entries due by asOf and journals the new
// equity when anything changed.
func (e *Engine) ApplyDue(ctx context.Context, owner string, asOf time.Time) error {
	done, err := e.cash.ProcessDue(ctx, owner, asOf)
	if err != nil {
		return err
	}
	if len(done) > 0 {
		e.recordEquity(ctx, owner)
	}
	return nil
}

// Reset deletes owner's orders, trades and positions and restores the
// starting balance. Scheduled cash entries are kept.
func (e *Engine) Reset(ctx context.Context, owner string) (broker.Account, error) {
	owner, err := cleanOwner(owner)
	if err != nil {
		return broker.Account{}, err
	}
	unlock := e.locks.Lock(owner)
	defer unlock()

	var a broker.Account
	err = e.store.Update(ctx, func(tx broker.Tx) error {
		var err error
		if a, err = tx.GetAccount(owner); err != nil {
			return err
		}
		if err := tx.ResetOwner(owner); err != nil {
			return err
		}
		a.Cash = e.startingCash
		return tx.SetCash(owner, a.Cash)
	})
	if err != nil {
		return broker.Account{}, fmt.Errorf("reset %s: %w", owner, err)
	}
	e.log.Info("account reset", zap.String("owner", owner))
	return a, nil
}

// OnFill journals a committed fill and the owner's equity right after it.
// Journal failures are logged only; the store is the record.
func (e *Engine) OnFill(ctx context.Context, t broker.Trade) {
	e.log.Info("fill",
		zap.String("trade", t.ID),
		zap.String("order", t.OrderID),
		zap.String("owner", t.Owner),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.Int64("qty", t.Qty),
		zap.String("price", market.Format(t.Price)),
	)
	if err := e.journal.RecordTrade(journal.FromTrade(t)); err != nil {
		e.log.Warn("journal trade", zap.String("trade", t.ID), zap.Error(err))
	}
	e.recordEquity(ctx, t.Owner)
}

func (e *Engine) recordEquity(ctx context.Context, owner string) {
	v, err := e.Valuation(ctx, owner)
	if err != nil {
		e.log.Warn("equity snapshot", zap.String("owner", owner), zap.Error(err))
		return
	}
	err = e.journal.RecordEquity(journal.EquitySnapshot{
		Time:     e.now().UTC(),
		Owner:    owner,
		Cash:     v.Cash,
		Holdings: v.Market,
		Equity:   v.Equity,
	})
	if err != nil {
		e.log.Warn("journal equity", zap.String("owner", owner), zap.Error(err))
	}
}
