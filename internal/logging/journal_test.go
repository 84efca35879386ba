package logging

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Jenola344/EvoNFT/internal/events"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE event_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   TEXT NOT NULL UNIQUE,
		kind       TEXT NOT NULL,
		asset_id   INTEGER NOT NULL,
		attributes TEXT,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := EventEntry{
		EventID:    "e1",
		Kind:       "NFTMinted",
		AssetID:    4,
		Attributes: map[string]string{"owner": "alice"},
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogEvent(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Recent(db, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Kind != "NFTMinted" || got[0].AssetID != 4 || got[0].Attributes["owner"] != "alice" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", entry.CreatedAt, got[0].CreatedAt)
	}
}

func TestLogEvent_DuplicateIgnored(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := EventEntry{EventID: "e1", Kind: "PoolCreated"}
	LogEvent(db, entry)
	if err := LogEvent(db, entry); err != nil {
		t.Fatalf("duplicate should be ignored, got %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM event_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

func TestLogEvent_EmptyAttributesStoredAsNull(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	LogEvent(db, EventEntry{EventID: "e1", Kind: "PoolCreated"})
	var attrs sql.NullString
	db.QueryRow("SELECT attributes FROM event_log").Scan(&attrs)
	if attrs.Valid {
		t.Error("expected NULL attributes")
	}
}

func TestLogEvent_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogEvent(db, EventEntry{EventID: "e1", Kind: "NFTMinted"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-event-tests

// #region journal-tests
func TestJournalPersistsEvents(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	j := NewJournal(db)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	j.Emit(ctx, events.New(events.NFTMinted, 1, at, map[string]string{"owner": "alice"}))
	j.Emit(ctx, events.New(events.TokenStaked, 2, at.Add(time.Second), nil))
	j.Emit(ctx, events.New(events.EvolutionCompleted, 1, at.Add(2*time.Second), map[string]string{"next_stage": "2"}))

	recent, _ := Recent(db, 2)
	if len(recent) != 2 || recent[0].Kind != string(events.EvolutionCompleted) {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
	forAsset, _ := ForAsset(db, 1)
	if len(forAsset) != 2 || forAsset[0].Kind != string(events.NFTMinted) {
		t.Fatalf("unexpected asset entries %+v", forAsset)
	}
}

func TestJournalSwallowsErrors(t *testing.T) {
	db := setupDB(t)
	db.Close()
	// Must not panic.
	NewJournal(db).Emit(context.Background(), events.New(events.NFTMinted, 1, time.Now(), nil))
}

// #endregion journal-tests
