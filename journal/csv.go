// journal/csv.go
package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "order_id", "owner", "symbol", "side", "qty", "price", "value", "executed_at"}
	equityHeader = []string{"time", "owner", "cash", "holdings", "equity"}
)

type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

// NewCSV opens both files for append, creating them as needed. A header is
// written only to a file that is empty.
func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := openAppend(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := openAppend(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.writeHeader(tf, j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.writeHeader(ef, j.equity, equityHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func (j *CSVJournal) writeHeader(f *os.File, w *csv.Writer, header []string) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() > 0 {
		return nil
	}
	return j.write(w, header)
}

func (j *CSVJournal) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.trades, []string{
		t.TradeID,
		t.OrderID,
		t.Owner,
		t.Symbol,
		string(t.Side),
		strconv.FormatInt(t.Qty, 10),
		t.Price.StringFixed(2),
		t.Value.StringFixed(2),
		t.ExecutedAt.UTC().Format(time.RFC3339),
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.equity, []string{
		e.Time.UTC().Format(time.RFC3339),
		e.Owner,
		e.Cash.StringFixed(2),
		e.Holdings.StringFixed(2),
		e.Equity.StringFixed(2),
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	j.equity.Flush()
	return errors.Join(j.trades.Error(), j.equity.Error(), j.tf.Close(), j.ef.Close())
}
