// Package schedule applies dated deposits and withdrawals to account cash.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/orderbook"
	"github.com/rustyeddy/paper/pkg/id"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Store broker.Store
	// Locks must be the table the order book uses.
	Locks *orderbook.Locks
	// AllowOverdraft lets a withdrawal take cash below zero. Off, such a
	// withdrawal is marked REJECTED and cash is left alone.
	AllowOverdraft bool
	Logger         *zap.Logger
	NewID          func() string
}

type Job struct {
	store          broker.Store
	locks          *orderbook.Locks
	allowOverdraft bool
	log            *zap.Logger
	newID          func() string
}

func New(cfg Config) (*Job, error) {
	if cfg.Store == nil {
		return nil, errors.New("schedule: store is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = orderbook.NewLocks()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	return &Job{
		store:          cfg.Store,
		locks:          cfg.Locks,
		allowOverdraft: cfg.AllowOverdraft,
		log:            cfg.Logger,
		newID:          cfg.NewID,
	}, nil
}

// Schedule records a PENDING cash movement for owner on the calendar date of
// on. Nothing touches cash until ProcessDue reaches that date.
func (j *Job) Schedule(ctx context.Context, owner string, typ broker.CashType, amount decimal.Decimal, on time.Time) (broker.CashTransaction, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return broker.CashTransaction{}, broker.Invalid("owner", "required")
	}
	if !typ.Valid() {
		return broker.CashTransaction{}, broker.Invalid("type", "must be DEPOSIT or WITHDRAW, got %q", typ)
	}
	amount = market.Round(amount)
	if !amount.IsPositive() {
		return broker.CashTransaction{}, broker.Invalid("amount", "must be positive, got %s", amount)
	}
	if on.IsZero() {
		return broker.CashTransaction{}, broker.Invalid("date", "required")
	}

	c := broker.CashTransaction{
		ID:           j.newID(),
		Owner:        owner,
		Type:         typ,
		Amount:       amount,
		ScheduledFor: broker.Day(on),
		Status:       broker.CashPending,
	}
	err := j.store.Update(ctx, func(tx broker.Tx) error {
		if _, err := tx.GetAccount(owner); err != nil {
			return err
		}
		return tx.InsertCashTransaction(c)
	})
	if err != nil {
		return broker.CashTransaction{}, fmt.Errorf("schedule %s: %w", strings.ToLower(string(typ)), err)
	}
	j.log.Info("cash scheduled",
		zap.String("id", c.ID),
		zap.String("owner", owner),
		zap.String("type", string(typ)),
		zap.String("amount", market.Format(amount)),
		zap.Time("date", c.ScheduledFor),
	)
	return c, nil
}

// ProcessDue settles every PENDING entry of owner dated on or before asOf,
// oldest first, in one transaction. Settled entries are never revisited, so
// calling it again for the same date is a no-op. It returns the entries it
// settled or rejected.
func (j *Job) ProcessDue(ctx context.Context, owner string, asOf time.Time) ([]broker.CashTransaction, error) {
	day := broker.Day(asOf)

	unlock := j.locks.Lock(owner)
	defer unlock()

	var done []broker.CashTransaction
	err := j.store.Update(ctx, func(tx broker.Tx) error {
		done = done[:0]
		acct, err := tx.GetAccount(owner)
		if err != nil {
			return err
		}
		pending, err := tx.ListCashTransactions(owner, broker.CashPending)
		if err != nil {
			return err
		}

		cash := acct.Cash
		for _, c := range pending {
			if c.ScheduledFor.After(day) {
				break
			}
			switch c.Type {
			case broker.Deposit:
				cash = cash.Add(c.Amount)
				c.Status = broker.CashProcessed
			case broker.Withdraw:
				if !j.allowOverdraft && cash.LessThan(c.Amount) {
					c.Status = broker.CashRejected
					break
				}
				cash = cash.Sub(c.Amount)
				c.Status = broker.CashProcessed
			default:
				return fmt.Errorf("cash transaction %s: unknown type %q", c.ID, c.Type)
			}
			processed := day
			c.ProcessedOn = &processed
			if err := tx.UpdateCashTransaction(c); err != nil {
				return err
			}
			done = append(done, c)
		}
		if len(done) == 0 {
			return nil
		}
		return tx.SetCash(owner, market.Round(cash))
	})
	if err != nil {
		return nil, fmt.Errorf("process due cash for %s: %w", owner, err)
	}

	for _, c := range done {
		if c.Status == broker.CashRejected {
			j.log.Warn("withdrawal rejected",
				zap.String("id", c.ID),
				zap.String("owner", owner),
				zap.String("amount", market.Format(c.Amount)),
			)
		}
	}
	if len(done) > 0 {
		j.log.Info("cash applied", zap.String("owner", owner), zap.Int("count", len(done)), zap.Time("as_of", day))
	}
	return done, nil
}

// List returns every cash entry of owner in (date, id) order.
func (j *Job) List(ctx context.Context, owner string) ([]broker.CashTransaction, error) {
	var out []broker.CashTransaction
	err := j.store.View(ctx, func(tx broker.Tx) error {
		if _, err := tx.GetAccount(owner); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCashTransactions(owner, "")
		return err
	})
	return out, err
}
