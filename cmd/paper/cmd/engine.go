package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/config"
	"github.com/rustyeddy/paper/internal/logging"
	"github.com/rustyeddy/paper/journal"
	"github.com/rustyeddy/paper/ledger"
	"github.com/rustyeddy/paper/sim"
	"github.com/rustyeddy/paper/store/memory"
	"github.com/rustyeddy/paper/store/sqlite"
	"go.uber.org/zap"
)

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *sim.Engine
	close  func() error
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile, envFile)
}

func openStore(cfg *config.Config) (broker.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.Store.DBPath)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

func openSink(j config.JournalConfig, typ string) (journal.Journal, error) {
	switch typ {
	case "csv":
		return journal.NewCSV(j.TradesFile, j.EquityFile)
	case "sqlite":
		return journal.NewSQLite(j.DBPath)
	case "kafka":
		return journal.NewKafka(journal.KafkaConfig{
			Brokers:     j.Kafka.Brokers,
			TradesTopic: j.Kafka.TradesTopic,
			EquityTopic: j.Kafka.EquityTopic,
		})
	}
	return nil, fmt.Errorf("unknown journal type %q", typ)
}

// openJournal opens every configured sink. More than one is fanned out
// through journal.Multi.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	types := cfg.Journal.Types()
	switch len(types) {
	case 0:
		return journal.Nop{}, nil
	case 1:
		return openSink(cfg.Journal, types[0])
	}
	var m journal.Multi
	for _, typ := range types {
		j, err := openSink(cfg.Journal, typ)
		if err != nil {
			return nil, errors.Join(err, m.Close())
		}
		m = append(m, j)
	}
	return m, nil
}

func open() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, syncLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		syncLog()
		return nil, fmt.Errorf("open store: %w", err)
	}

	j, err := openJournal(cfg)
	if err != nil {
		store.Close()
		syncLog()
		return nil, fmt.Errorf("create journal: %w", err)
	}

	engine, err := sim.NewEngine(sim.Options{
		Store:          store,
		Feed:           cfg.FeedConfig(),
		StartingCash:   cfg.StartingCash(),
		SellOverflow:   ledger.SellOverflow(cfg.Orders.SellOverflow),
		AllowOverdraft: cfg.Cash.AllowOverdraft,
		SweepWorkers:   cfg.Market.SweepWorkers,
		Journal:        j,
		Logger:         log,
	})
	if err != nil {
		j.Close()
		store.Close()
		syncLog()
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		log:    log,
		engine: engine,
		close: func() error {
			// the engine closes the journal; the store is ours
			err := errors.Join(engine.Close(), store.Close())
			syncLog()
			return err
		},
	}, nil
}

// withEngine opens the engine, settles today's due cash for owner when one
// is given, runs fn and closes everything.
func withEngine(ctx context.Context, owner string, fn func(rt *runtime) error) (err error) {
	rt, err := open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.close())
	}()
	if owner != "" {
		if err := rt.engine.ApplyDue(ctx, owner, time.Now()); err != nil {
			return err
		}
	}
	return fn(rt)
}
