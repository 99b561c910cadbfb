// internal/storage/clickhouse/sink.go
package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/export"
)

// DefaultBatchSize is how many events the sink buffers before inserting.
const DefaultBatchSize = 256

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS market_events (
		time          DateTime64(3),
		type          LowCardinality(String),
		market        String,
		actor         String,
		base_amount   UInt64,
		quote_amount  UInt64,
		creator_fee   UInt64,
		protocol_fee  UInt64,
		referral_fee  UInt64,
		detail        String
	) ENGINE = MergeTree()
	ORDER BY (market, time)
`

// EventSink is a bus handler that appends committed market events to
// ClickHouse in batches.
type EventSink struct {
	conn      *Conn
	logger    *zap.Logger
	batchSize int

	mu      sync.Mutex
	pending []export.Record
}

var _ events.Handler = (*EventSink)(nil)

func NewEventSink(conn *Conn, batchSize int, logger *zap.Logger) *EventSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &EventSink{conn: conn, batchSize: batchSize, logger: logger.Named("clickhouse")}
}

// Migrate creates the events table.
func (s *EventSink) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create market_events: %w", err)
	}
	return nil
}

// Handle buffers e and inserts the buffer once it reaches the batch size.
func (s *EventSink) Handle(ctx context.Context, e events.Event) error {
	s.mu.Lock()
	s.pending = append(s.pending, export.Flatten(e))
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if !full {
		return nil
	}
	return s.Flush(ctx)
}

// Pending reports how many events wait for the next insert.
func (s *EventSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush inserts every buffered event. On failure the events stay buffered
// for the next attempt.
func (s *EventSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_events (
			time, type, market, actor, base_amount, quote_amount,
			creator_fee, protocol_fee, referral_fee, detail
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range s.pending {
		err = batch.Append(
			r.Time, string(r.Type), r.Market, r.Actor, r.BaseAmount, r.QuoteAmount,
			r.CreatorFee, r.ProtocolFee, r.ReferralFee, r.Detail,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	s.logger.Debug("Events flushed", zap.Int("count", len(s.pending)))
	s.pending = s.pending[:0]
	return nil
}

// ByMarket returns the stored events of market ordered by time.
func (s *EventSink) ByMarket(ctx context.Context, market string) ([]export.Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT time, type, market, actor, base_amount, quote_amount,
			creator_fee, protocol_fee, referral_fee, detail
		FROM market_events
		WHERE market = ?
		ORDER BY time ASC
	`, market)
	if err != nil {
		return nil, fmt.Errorf("query by market: %w", err)
	}
	defer rows.Close()

	var out []export.Record
	for rows.Next() {
		var (
			r   export.Record
			typ string
		)
		if err := rows.Scan(&r.Time, &typ, &r.Market, &r.Actor, &r.BaseAmount, &r.QuoteAmount,
			&r.CreatorFee, &r.ProtocolFee, &r.ReferralFee, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Type = events.EventType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close flushes what is buffered and closes the connection.
func (s *EventSink) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if err := s.conn.Close(); err != nil {
		return err
	}
	return flushErr
}
