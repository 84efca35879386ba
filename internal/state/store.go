package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS evolution_requests (
	request_id       TEXT PRIMARY KEY,
	asset_id         INTEGER NOT NULL,
	requester        TEXT NOT NULL,
	stage_at_request INTEGER NOT NULL,
	fulfilled        INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	fulfilled_at     TEXT
);

CREATE INDEX IF NOT EXISTS idx_evolution_requests_pending
	ON evolution_requests (fulfilled, created_at);

CREATE TABLE IF NOT EXISTS event_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT NOT NULL UNIQUE,
	kind         TEXT NOT NULL,
	asset_id     INTEGER NOT NULL,
	attributes   TEXT,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// Values of evolution_requests.fulfilled.
const (
	requestPending   = 0
	requestFulfilled = 1
	requestExpired   = 2
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store persists the pending evolution request table and the event log in SQLite.
type Store struct {
	db *sql.DB
}

var _ evolution.RequestStore = (*Store)(nil)

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region put
// Put implements evolution.RequestStore.
func (s *Store) Put(ctx context.Context, req evolution.Request) error {
	if req.ID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "request id is empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO evolution_requests (request_id, asset_id, requester, stage_at_request, fulfilled, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(request_id) DO NOTHING`,
		req.ID, int64(req.AssetID), string(req.Requester), int64(req.StageAtRequest),
		req.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert request rows: %w", err)
	}
	if n == 0 {
		return apperrors.WithMetadata(apperrors.CodeDuplicateRequest, "evolution request "+req.ID+" already exists",
			map[string]string{"request_id": req.ID})
	}
	return nil
}

// #endregion put

// #region get
// Get implements evolution.RequestStore.
func (s *Store) Get(ctx context.Context, id string) (evolution.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT request_id, asset_id, requester, stage_at_request, fulfilled, created_at, fulfilled_at
		 FROM evolution_requests WHERE request_id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return evolution.Request{}, apperrors.WithMetadata(apperrors.CodeNotFound, "evolution request "+id+" not found",
			map[string]string{"request_id": id})
	}
	if err != nil {
		return evolution.Request{}, fmt.Errorf("get request %s: %w", id, err)
	}
	return req, nil
}

// #endregion get

// #region mark-fulfilled
// MarkFulfilled implements evolution.RequestStore as a compare-and-set on
// the fulfilled flag.
func (s *Store) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evolution_requests SET fulfilled = 1, fulfilled_at = ?
		 WHERE request_id = ? AND fulfilled = 0`,
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("mark fulfilled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark fulfilled rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Expired {
		return apperrors.WithMetadata(apperrors.CodeRequestStale, "evolution request "+id+" expired before fulfillment",
			map[string]string{"request_id": id})
	}
	return apperrors.WithMetadata(apperrors.CodeAlreadyFulfilled, "evolution request "+id+" already fulfilled",
		map[string]string{"request_id": id})
}

// Reopen implements evolution.RequestStore.
func (s *Store) Reopen(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evolution_requests SET fulfilled = 0, fulfilled_at = NULL WHERE request_id = ?`, id)
	if err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "evolution request "+id+" not found",
			map[string]string{"request_id": id})
	}
	return nil
}

// ExpirePending closes every unfulfilled request without applying it and
// returns how many were closed. Asset state does not survive a restart, so
// requests left over from an earlier process must never reach the ledger.
func (s *Store) ExpirePending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evolution_requests SET fulfilled = ? WHERE fulfilled = ?`, requestExpired, requestPending)
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending rows: %w", err)
	}
	return n, nil
}

// #endregion mark-fulfilled

// #region pending
// Pending implements evolution.RequestStore.
func (s *Store) Pending(ctx context.Context) ([]evolution.Request, error) {
	return s.listRequests(ctx,
		`SELECT request_id, asset_id, requester, stage_at_request, fulfilled, created_at, fulfilled_at
		 FROM evolution_requests WHERE fulfilled = 0 ORDER BY created_at ASC, request_id ASC`)
}

// ListRequests returns the most recent requests, fulfilled or not.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]evolution.Request, error) {
	return s.listRequests(ctx,
		`SELECT request_id, asset_id, requester, stage_at_request, fulfilled, created_at, fulfilled_at
		 FROM evolution_requests ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]evolution.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []evolution.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// #endregion pending

// #region stats
// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM evolution_requests),
			(SELECT COUNT(*) FROM evolution_requests WHERE fulfilled = 0),
			(SELECT COUNT(*) FROM event_log)`,
	).Scan(&st.Requests, &st.Pending, &st.Events)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// #endregion stats

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (evolution.Request, error) {
	var (
		req         evolution.Request
		assetID     int64
		requester   string
		stage       int64
		fulfilled   int
		createdStr  string
		fulfilledAt sql.NullString
	)
	if err := sc.Scan(&req.ID, &assetID, &requester, &stage, &fulfilled, &createdStr, &fulfilledAt); err != nil {
		return evolution.Request{}, err
	}
	req.AssetID = asset.ID(assetID)
	req.Requester = auth.Identity(requester)
	req.StageAtRequest = uint64(stage)
	req.Fulfilled = fulfilled == requestFulfilled
	req.Expired = fulfilled == requestExpired
	req.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	if fulfilledAt.Valid {
		req.FulfilledAt, _ = time.Parse(timeLayout, fulfilledAt.String)
	}
	return req, nil
}

// #endregion scan
