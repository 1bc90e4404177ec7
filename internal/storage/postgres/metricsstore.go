// Package postgres records push submissions in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

const (
	metricsTableName   = "push_message_info"
	operationTimeout   = 5 * time.Second
	maxRawMessageBytes = 4500
)

var ErrInvalidDSN = errors.New("postgres dsn is required")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// MetricsStore implements push.MetricsRecorder. The table is created on first use.
type MetricsStore struct {
	dsn    string
	openDB sqlOpenFunc
	now    func() time.Time

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewMetricsStore(dsn string) (*MetricsStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return &MetricsStore{
		dsn:    dsn,
		openDB: sql.Open,
		now:    time.Now,
	}, nil
}

// StoreNewRequest persists one submission and returns its correlation record.
func (s *MetricsStore) StoreNewRequest(ctx context.Context, applicationID, strippedPayloadJSON, ipAddress, clientIdentifier string) (*push.PushMessageInformation, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	info := &push.PushMessageInformation{
		ID:               uuid.NewString(),
		ApplicationID:    applicationID,
		RawJSONMessage:   truncate(strippedPayloadJSON, maxRawMessageBytes),
		IPAddress:        ipAddress,
		ClientIdentifier: clientIdentifier,
		SubmitDate:       s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, push_application_id, raw_json_message, ip_address, client_identifier, submit_date)
		VALUES ($1, $2, $3, $4, $5, $6)`, metricsTableName)
	_, err := s.db.ExecContext(ctx, query,
		info.ID, info.ApplicationID, info.RawJSONMessage, info.IPAddress, info.ClientIdentifier, info.SubmitDate)
	if err != nil {
		return nil, fmt.Errorf("failed to insert push message info: %w", err)
	}
	return info, nil
}

// FindByID returns nil when no record has the id.
func (s *MetricsStore) FindByID(ctx context.Context, id string) (*push.PushMessageInformation, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, push_application_id, raw_json_message, ip_address, client_identifier, submit_date
		FROM %s WHERE id = $1`, metricsTableName)
	var info push.PushMessageInformation
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&info.ID, &info.ApplicationID, &info.RawJSONMessage, &info.IPAddress, &info.ClientIdentifier, &info.SubmitDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteOlderThan removes records submitted before the cutoff and reports how many went.
func (s *MetricsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE submit_date < $1", metricsTableName), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MetricsStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *MetricsStore) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operationTimeout)
		defer cancel()
		if err := db.PingContext(initCtx); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("postgres ping failed: %w", err)
			return
		}
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				push_application_id TEXT NOT NULL,
				raw_json_message TEXT NOT NULL,
				ip_address TEXT NOT NULL DEFAULT '',
				client_identifier TEXT NOT NULL DEFAULT '',
				submit_date TIMESTAMPTZ NOT NULL
			)`, metricsTableName)
		if _, err := db.ExecContext(initCtx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

// truncate cuts at a rune boundary at or below limit bytes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
