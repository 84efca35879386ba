package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Jenola344/EvoNFT/internal/events"
)

// timeLayout matches the fixed-width timestamps of the state package.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region log-event
// LogEvent writes one entry to the event_log table. A repeated event id is
// ignored, so redelivered notifications are stored once.
func LogEvent(db *sql.DB, entry EventEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	attrs, err := encodeAttributes(entry.Attributes)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO event_log (event_id, kind, asset_id, attributes, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		entry.EventID,
		entry.Kind,
		int64(entry.AssetID),
		attrs,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region recent
// Recent returns up to limit entries, newest first.
func Recent(db *sql.DB, limit int) ([]EventEntry, error) {
	return query(db,
		`SELECT event_id, kind, asset_id, attributes, created_at
		 FROM event_log ORDER BY id DESC LIMIT ?`, limit)
}

// ForAsset returns every entry for one asset, oldest first.
func ForAsset(db *sql.DB, assetID uint64) ([]EventEntry, error) {
	return query(db,
		`SELECT event_id, kind, asset_id, attributes, created_at
		 FROM event_log WHERE asset_id = ? ORDER BY id ASC`, int64(assetID))
}

func query(db *sql.DB, q string, args ...any) ([]EventEntry, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventEntry
	for rows.Next() {
		var (
			e          EventEntry
			assetID    int64
			attrs      sql.NullString
			createdStr string
		)
		if err := rows.Scan(&e.EventID, &e.Kind, &assetID, &attrs, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.AssetID = uint64(assetID)
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

// #region journal
// Journal is an events.Emitter that persists every notification.
// Persistence failures are logged and never fail the emitting operation.
type Journal struct {
	db *sql.DB
}

var _ events.Emitter = (*Journal)(nil)

// NewJournal creates a journal writing to db.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Emit implements events.Emitter.
func (j *Journal) Emit(_ context.Context, evt events.Event) {
	err := LogEvent(j.db, EventEntry{
		EventID:    evt.ID,
		Kind:       string(evt.Kind),
		AssetID:    evt.AssetID,
		Attributes: evt.Attributes,
		CreatedAt:  evt.At,
	})
	if err != nil {
		log.Printf("journal: %s %s: %v", evt.Kind, evt.ID, err)
	}
}

// #endregion journal

// #region helpers
func encodeAttributes(attrs map[string]string) (interface{}, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return string(b), nil
}

// #endregion helpers
