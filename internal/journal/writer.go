package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/model"
	"github.com/rickgao/exchange-ws/internal/router"
)

// DB is the subset of *pgxpool.Pool the journal needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config controls batching.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before being written
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Stats tracks writer activity.
type Stats struct {
	Inserts int64
	Skipped int64
	Errors  int64
	Flushes int64
}

type eventRow struct {
	ReceivedAt time.Time
	Seqnum     int64
	Event      string
	OrderID    string
	ClOrdID    string
	Symbol     string
	OrdStatus  string
	Text       string
	Payload    []byte
}

// Writer batches trading events into the order_events table.
type Writer struct {
	cfg     Config
	db      DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	input *router.Buffer[eventRow]

	batch   []eventRow
	batchMu sync.Mutex
	stats   Stats

	ctx     context.Context
	cancel  context.CancelFunc
	drained chan struct{}
	wg      sync.WaitGroup
}

// NewWriter creates a Writer. Call Start before recording events.
func NewWriter(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger,
		input:   router.NewBuffer[eventRow](),
		drained: make(chan struct{}),
		batch:   make([]eventRow, 0, cfg.BatchSize),
	}
}

// Record queues ev for writing. Only order updates and rejections are kept.
// Safe to use as a trading observer: it never blocks on the database.
func (w *Writer) Record(ev model.Event) {
	if ev.Event != model.EventUpdated && ev.Event != model.EventRejected {
		return
	}
	if !w.input.Send(transform(ev, time.Now())) {
		w.bump(func(s *Stats) { s.Skipped++ })
		w.metrics.JournalRows("skipped", 1)
	}
}

// Start begins consuming queued events.
func (w *Writer) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
}

// Stop drains queued events, writes them and shuts the writer down.
// Events recorded after Stop are dropped.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal")
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal stop timed out", "pending", w.input.Len())
		err = ctx.Err()
	}

	if w.cancel != nil {
		w.cancel()
	}
	return err
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()
	defer close(w.drained)

	for {
		row, ok := w.input.Receive()
		if !ok {
			w.flush(context.WithoutCancel(w.ctx))
			return
		}
		w.add(row)
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.drained:
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) add(row eventRow) {
	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	full := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if full {
		w.flush(w.ctx)
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	rows := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	if err := w.insert(ctx, rows); err != nil {
		w.logger.Error("journal insert failed", "error", err, "count", len(rows))
		w.bump(func(s *Stats) { s.Errors++ })
		w.metrics.JournalRows("failed", len(rows))
		return
	}

	w.bump(func(s *Stats) {
		s.Inserts += int64(len(rows))
		s.Flushes++
	})
	w.metrics.JournalRows("inserted", len(rows))
	w.logger.Debug("journal flushed", "count", len(rows), "duration", time.Since(start))
}

func (w *Writer) insert(ctx context.Context, rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOrderEvent,
			r.ReceivedAt, r.Seqnum, r.Event, nullable(r.OrderID), nullable(r.ClOrdID),
			nullable(r.Symbol), nullable(r.OrdStatus), nullable(r.Text), r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) bump(f func(*Stats)) {
	w.batchMu.Lock()
	f(&w.stats)
	w.batchMu.Unlock()
}

func transform(ev model.Event, receivedAt time.Time) eventRow {
	field := func(name string) string {
		v, _ := ev.Field(name)
		return v
	}
	return eventRow{
		ReceivedAt: receivedAt,
		Seqnum:     ev.Seqnum,
		Event:      string(ev.Event),
		OrderID:    field("orderID"),
		ClOrdID:    field("clOrdID"),
		Symbol:     field("symbol"),
		OrdStatus:  field("ordStatus"),
		Text:       ev.Text,
		Payload:    ev.Raw,
	}
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
