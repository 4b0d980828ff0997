package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	batchSize   = 100
	maxAttempts = 10
)

// Producer is the broker-facing side of the dispatcher.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// KafkaProducer publishes outbox events with segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, log *zap.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
			Logger:   zap.NewStdLog(log.With(zap.String("component", "kafka_producer"))),
		},
	}
}

func (p *KafkaProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("outbox: produce to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Dispatcher drains committed outbox rows to the broker. Rows are claimed
// with SKIP LOCKED so multiple dispatchers never double-publish within one
// poll; delivery remains at-least-once across crashes, which downstream
// consumers absorb the same way the payment callback path does.
type Dispatcher struct {
	pool     *pgxpool.Pool
	producer Producer
	interval time.Duration
	log      *zap.Logger
}

func NewDispatcher(pool *pgxpool.Pool, producer Producer, interval time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		producer: producer,
		interval: interval,
		log:      log.With(zap.String("component", "outbox_dispatcher")),
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.drain(ctx); err != nil {
				d.log.Error("drain failed", zap.Error(err))
			}
		}
	}
}

type pendingRow struct {
	id       int64
	topic    string
	payload  []byte
	attempts int
}

func (d *Dispatcher) drain(ctx context.Context) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("outbox: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE processed_at IS NULL AND attempts < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, maxAttempts, batchSize)
	if err != nil {
		return fmt.Errorf("outbox: claim pending: %w", err)
	}

	var pending []pendingRow
	for rows.Next() {
		var r pendingRow
		if err := rows.Scan(&r.id, &r.topic, &r.payload, &r.attempts); err != nil {
			rows.Close()
			return fmt.Errorf("outbox: scan pending: %w", err)
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("outbox: iterate pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	for _, r := range pending {
		key := []byte(fmt.Sprintf("%d", r.id))
		if err := d.producer.Produce(ctx, r.topic, key, r.payload); err != nil {
			d.log.Warn("publish failed",
				zap.Int64("event_id", r.id),
				zap.String("topic", r.topic),
				zap.Int("attempts", r.attempts+1),
				zap.Error(err))
			if _, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, r.id); err != nil {
				return fmt.Errorf("outbox: bump attempts: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET processed_at = now() WHERE id = $1`, r.id); err != nil {
			return fmt.Errorf("outbox: mark processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("outbox: commit drain: %w", err)
	}
	d.log.Debug("drained batch", zap.Int("count", len(pending)))
	return nil
}
