package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

var messageColumns = []string{
	"id", "provider", "destination", "body", "length", "segments",
	"status", "priority", "retry_count", "max_retries", "scheduled_for",
	"booking_id", "user_id", "metadata", "currency",
	"provider_message_id", "error_code", "error_message",
	"queued_at", "sent_at", "failed_at", "processed_at",
	"created_at", "updated_at",
}

type PostgresMessageStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresMessageStore) Upsert(ctx context.Context, m *model.Message) error {
	meta, err := marshalMeta(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := s.sb.
		Insert("messages").
		Columns(messageColumns...).
		Values(
			m.ID, m.Provider, m.Destination, m.Body, m.Length, m.Segments,
			string(m.Status), string(m.Priority), m.RetryCount, m.MaxRetries, m.ScheduledFor,
			m.BookingID, m.UserID, meta, m.Currency,
			m.ProviderMessageID, m.ErrorCode, m.ErrorMessage,
			m.QueuedAt, m.SentAt, m.FailedAt, m.ProcessedAt,
			m.CreatedAt, m.UpdatedAt,
		).
		Suffix(`
ON CONFLICT (id)
DO UPDATE SET
	status = EXCLUDED.status,
	retry_count = EXCLUDED.retry_count,
	scheduled_for = EXCLUDED.scheduled_for,
	provider_message_id = EXCLUDED.provider_message_id,
	error_code = EXCLUDED.error_code,
	error_message = EXCLUDED.error_message,
	queued_at = EXCLUDED.queued_at,
	sent_at = EXCLUDED.sent_at,
	failed_at = EXCLUDED.failed_at,
	processed_at = EXCLUDED.processed_at,
	updated_at = EXCLUDED.updated_at
`)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert message sql: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

func (s *PostgresMessageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	query := s.sb.
		Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get message sql: %w", err)
	}

	m, err := scanMessage(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *PostgresMessageStore) List(ctx context.Context, f Filter) ([]model.Message, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.sb.
		Select(messageColumns...).
		From("messages").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Provider != "" {
		query = query.Where(sq.Eq{"provider": f.Provider})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages sql: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PostgresMessageStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+joinColumns()+`
		FROM messages
		WHERE status = 'queued'
		  AND processed_at IS NULL
		  AND (scheduled_for IS NULL OR scheduled_for <= $1)
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, tx.Commit()
	}

	claimed := now.UTC()
	for i := range msgs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET processed_at = $2, updated_at = $2
			WHERE id = $1
		`, msgs[i].ID, claimed); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range msgs {
		t := claimed
		msgs[i].ProcessedAt = &t
		msgs[i].UpdatedAt = claimed
	}
	return msgs, nil
}

func (s *PostgresMessageStore) CountQueued(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE status = 'queued'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*model.Message, error) {
	var (
		m           model.Message
		status      string
		priority    string
		meta        []byte
		scheduled   sql.NullTime
		bookingID   sql.NullString
		userID      sql.NullString
		providerID  sql.NullString
		errCode     sql.NullString
		errMsg      sql.NullString
		queuedAt    sql.NullTime
		sentAt      sql.NullTime
		failedAt    sql.NullTime
		processedAt sql.NullTime
	)

	if err := r.Scan(
		&m.ID, &m.Provider, &m.Destination, &m.Body, &m.Length, &m.Segments,
		&status, &priority, &m.RetryCount, &m.MaxRetries, &scheduled,
		&bookingID, &userID, &meta, &m.Currency,
		&providerID, &errCode, &errMsg,
		&queuedAt, &sentAt, &failedAt, &processedAt,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Status = model.Status(status)
	m.Priority = model.Priority(priority)
	m.ScheduledFor = nullTime(scheduled)
	m.BookingID = nullString(bookingID)
	m.UserID = nullString(userID)
	m.ProviderMessageID = nullString(providerID)
	m.ErrorCode = nullString(errCode)
	m.ErrorMessage = nullString(errMsg)
	m.QueuedAt = nullTime(queuedAt)
	m.SentAt = nullTime(sentAt)
	m.FailedAt = nullTime(failedAt)
	m.ProcessedAt = nullTime(processedAt)

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

func joinColumns() string {
	out := ""
	for i, c := range messageColumns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

type PostgresEventLog struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgresEventLog(db *sql.DB) *PostgresEventLog {
	return &PostgresEventLog{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (l *PostgresEventLog) Append(ctx context.Context, e *model.EventLogEntry) error {
	meta, err := marshalMeta(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	query := l.sb.
		Insert("message_events").
		Columns("id", "message_id", "at", "kind", "detail", "metadata").
		Values(e.ID, e.MessageID, e.At, string(e.Kind), e.Detail, meta)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build append event sql: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l *PostgresEventLog) ListByMessage(ctx context.Context, messageID string) ([]model.EventLogEntry, error) {
	query := l.sb.
		Select("id", "message_id", "at", "kind", "detail", "metadata").
		From("message_events").
		Where(sq.Eq{"message_id": messageID}).
		OrderBy("at ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list events sql: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.EventLogEntry
	for rows.Next() {
		var (
			e    model.EventLogEntry
			kind string
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &e.At, &kind, &e.Detail, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
