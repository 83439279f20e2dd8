package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"freegamewatcher/internal/model"
	"freegamewatcher/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSubscriber inserts a new subscriber and populates its ID and CreatedAt.
func (s *SQLite) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (phone, verified, created_at) VALUES (?, ?, ?)`,
		sub.Phone, boolToInt(sub.Verified), now,
	)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSubscriberByPhone returns the subscriber with the given phone number.
func (s *SQLite) GetSubscriberByPhone(ctx context.Context, phone string) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone, verified, created_at, last_alert_at
		 FROM subscribers WHERE phone = ?`, phone,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// VerifySubscriber marks the subscriber with the given phone as verified,
// creating the record if it does not exist yet.
func (s *SQLite) VerifySubscriber(ctx context.Context, phone string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET verified = 1 WHERE phone = ?`, phone,
	)
	if err != nil {
		return fmt.Errorf("verify subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		sub := model.Subscriber{Phone: phone, Verified: true}
		return s.CreateSubscriber(ctx, &sub)
	}
	return nil
}

// DeleteSubscriberByPhone removes a subscriber together with its alert
// history and any pending OTP codes.
func (s *SQLite) DeleteSubscriberByPhone(ctx context.Context, phone string) error {
	sub, err := s.GetSubscriberByPhone(ctx, phone)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerted_games WHERE subscriber_id = ?`, sub.ID); err != nil {
		return fmt.Errorf("delete alerted_games: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM otps WHERE phone = ?`, phone); err != nil {
		return fmt.Errorf("delete otps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, sub.ID); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return tx.Commit()
}

// ListVerifiedSubscribers returns all verified subscribers ordered by ID.
func (s *SQLite) ListVerifiedSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, verified, created_at, last_alert_at
		 FROM subscribers WHERE verified = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// HasAlerted reports whether an alert record exists for the given
// subscriber and game.
func (s *SQLite) HasAlerted(ctx context.Context, subscriberID int64, gameID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerted_games WHERE subscriber_id = ? AND game_id = ?`,
		subscriberID, gameID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check alerted: %w", err)
	}
	return count > 0, nil
}

// RecordAlerts inserts one alert record per game and advances the
// subscriber's last_alert_at, all in a single transaction. Callers must
// only invoke it after a confirmed successful delivery.
func (s *SQLite) RecordAlerts(ctx context.Context, subscriberID int64, games []model.Game, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	alertedAt := at.UTC().Format(timeLayout)
	for _, g := range games {
		var expires *string
		if g.EndsAt != "" {
			v := g.EndsAt
			expires = &v
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alerted_games (subscriber_id, game_id, game_title, alerted_at, expires_at)
			 VALUES (?, ?, ?, ?, ?)`,
			subscriberID, g.ID, g.Title, alertedAt, expires,
		); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscribers SET last_alert_at = ? WHERE id = ?`,
		alertedAt, subscriberID,
	); err != nil {
		return fmt.Errorf("update last alert: %w", err)
	}
	return tx.Commit()
}

// CreateOTP inserts a new OTP code and populates its ID and CreatedAt.
func (s *SQLite) CreateOTP(ctx context.Context, otp *model.OTP) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO otps (phone, code, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		otp.Phone, otp.Code, otp.ExpiresAt.UTC().Format(timeLayout), now,
	)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	otp.ID = id
	otp.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ConsumeOTP checks whether an unexpired code exists for the phone and, if
// so, deletes every code stored for that phone. Returns true when the code
// was valid.
func (s *SQLite) ConsumeOTP(ctx context.Context, phone, code string, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM otps WHERE phone = ? AND code = ? AND expires_at > ?`,
		phone, code, now.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check otp: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM otps WHERE phone = ?`, phone); err != nil {
		return false, fmt.Errorf("delete otps: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// DeleteExpiredOTPs removes all codes whose expiry has passed.
func (s *SQLite) DeleteExpiredOTPs(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM otps WHERE expires_at <= ?`, now.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("delete expired otps: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (*model.Subscriber, error) {
	var sub model.Subscriber
	var verified int
	var created, lastAlert sql.NullString
	err := row.Scan(&sub.ID, &sub.Phone, &verified, &created, &lastAlert)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.Verified = verified == 1
	if created.Valid {
		sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if lastAlert.Valid {
		t, _ := time.Parse(timeLayout, lastAlert.String)
		sub.LastAlertAt = &t
	}
	return &sub, nil
}
