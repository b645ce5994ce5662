package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrStreamNotFound      = errors.New("stream not found")
)

const uniqueViolation = "23505"

// Event is one immutable entry of a stream.
type Event struct {
	ID         int64           `json:"id"`
	StreamID   uuid.UUID       `json:"stream_id"`
	StreamType string          `json:"stream_type"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Version    int             `json:"version"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store is an append-only event log in Postgres. Streams are never truncated:
// deleting the entity a stream describes leaves its events in place.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("fleetmaint/eventstore"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append writes events after the current head of the stream inside tx, so the
// events commit or roll back with the state change they describe.
func (s *Store) Append(ctx context.Context, tx *sql.Tx, streamID uuid.UUID, streamType string, events []Event) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("stream.id", streamID.String()),
			attribute.String("stream.type", streamType),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	var head int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE stream_id = $1
	`, streamID.String()).Scan(&head)
	if err != nil {
		return fmt.Errorf("query stream head: %w", err)
	}

	for i, event := range events {
		version := head + i + 1
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO events (stream_id, stream_type, event_type, payload, metadata, version, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, streamID.String(), streamType, event.EventType, []byte(event.Payload), metadata, version, s.now()).Scan(&id)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", id),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	return nil
}

// Load returns every event of a stream in version order.
func (s *Store) Load(ctx context.Context, streamID uuid.UUID) ([]Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(attribute.String("stream.id", streamID.String())),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, stream_type, event_type, payload, metadata, version, recorded_at
		FROM events
		WHERE stream_id = $1
		ORDER BY version ASC
	`, streamID.String())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event    Event
			payload  []byte
			metadata []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.StreamID,
			&event.StreamType,
			&event.EventType,
			&payload,
			&metadata,
			&event.Version,
			&event.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Payload = json.RawMessage(payload)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	if len(events) == 0 {
		return nil, ErrStreamNotFound
	}
	return events, nil
}
