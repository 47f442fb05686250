package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes decision events to ClickHouse asynchronously.
// Write() is non-blocking — events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *DecisionEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background
// flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is in the DSN; enforce it here as
	// a safety net for managed ClickHouse deployments.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *DecisionEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues a decision event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *DecisionEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*DecisionEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain remaining events from buffer
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO decision_events (
			request_id, tenant_id, timestamp, kind,
			conversation_id, turn_id, language, verification_state,
			risk_level, response_mode, allowed_fields, denied_fields, deny_reasons,
			filter_action, leak_types, leak_patterns, reply_hash, reply_size,
			gate_topic, gate_reason, missing_fields,
			is_shadow, latency_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var isShadowUint8 uint8
		if e.IsShadow {
			isShadowUint8 = 1
		}

		if err := batch.Append(
			e.RequestID,
			e.TenantID,
			e.Timestamp,
			e.Kind,
			e.ConversationID,
			e.TurnID,
			e.Language,
			e.VerificationState,
			e.RiskLevel,
			e.ResponseMode,
			e.AllowedFields,
			e.DeniedFields,
			e.DenyReasons,
			e.FilterAction,
			e.LeakTypes,
			e.LeakPatterns,
			e.ReplyHash,
			e.ReplySize,
			e.GateTopic,
			e.GateReason,
			e.MissingFields,
			isShadowUint8,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the EventWriter fallback when ClickHouse is not configured.
// Events go to the structured log instead of a table.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

// Write logs the event at info level.
func (w *LogWriter) Write(event *DecisionEvent) {
	w.logger.Info("decision event",
		zap.String("request_id", event.RequestID),
		zap.String("tenant_id", event.TenantID),
		zap.String("kind", event.Kind),
		zap.String("verification_state", event.VerificationState),
		zap.String("risk_level", event.RiskLevel),
		zap.String("response_mode", event.ResponseMode),
		zap.String("filter_action", event.FilterAction),
		zap.Strings("leak_patterns", event.LeakPatterns),
		zap.String("gate_reason", event.GateReason),
		zap.Bool("is_shadow", event.IsShadow),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

// Close is a no-op for LogWriter.
func (w *LogWriter) Close() {}
