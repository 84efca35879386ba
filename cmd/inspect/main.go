package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Jenola344/EvoNFT/internal/evolution"
	"github.com/Jenola344/EvoNFT/internal/logging"
	"github.com/Jenola344/EvoNFT/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evonft.db")
	last := flag.Int("events", 20, "show N most recent events")
	assetID := flag.Uint64("asset", 0, "show every event of one asset")
	pending := flag.Bool("pending", false, "show pending evolution requests instead of events")
	requests := flag.Int("requests", 0, "show N most recent evolution requests instead of events")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/evonft.db [--events N] [--asset id] [--pending] [--requests N] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *pending:
		err = runPendingMode(ctx, store, *jsonOut)
	case *requests > 0:
		err = runRequestMode(ctx, store, *requests, *jsonOut)
	default:
		err = runEventMode(ctx, store, *last, *assetID, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region event-mode

type eventRow struct {
	EventID    string            `json:"event_id"`
	Kind       string            `json:"kind"`
	AssetID    uint64            `json:"asset_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

func runEventMode(ctx context.Context, store *state.Store, last int, assetID uint64, jsonOut bool) error {
	var (
		entries []logging.EventEntry
		err     error
	)
	if assetID != 0 {
		entries, err = logging.ForAsset(store.DB(), assetID)
	} else {
		entries, err = logging.Recent(store.DB(), last)
	}
	if err != nil {
		return err
	}

	// Recent returns newest first; print chronologically.
	rows := make([]eventRow, len(entries))
	for i, e := range entries {
		r := eventRow{
			EventID:    e.EventID,
			Kind:       e.Kind,
			AssetID:    e.AssetID,
			Attributes: e.Attributes,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if assetID != 0 {
			rows[i] = r
		} else {
			rows[len(entries)-1-i] = r
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Requests: %d (%d pending) | Events: %d\n\n", stats.Requests, stats.Pending, stats.Events)
	fmt.Printf("%-8s  %-22s  %6s  %-20s  %s\n", "Event", "Kind", "Asset", "Time", "Attributes")
	fmt.Printf("%-8s+-%-22s+-%6s+-%-20s+-%s\n", "--------", "----------------------", "------", "--------------------", "----------")
	for _, r := range rows {
		asset := "-"
		if r.AssetID != 0 {
			asset = fmt.Sprintf("%d", r.AssetID)
		}
		fmt.Printf("%-8s  %-22s  %6s  %-20s  %s\n", shortID(r.EventID), r.Kind, asset, r.CreatedAt, formatAttrs(r.Attributes))
	}
	return nil
}

// #endregion event-mode

// #region request-mode

type requestRow struct {
	RequestID      string `json:"request_id"`
	AssetID        uint64 `json:"asset_id"`
	Requester      string `json:"requester"`
	StageAtRequest uint64 `json:"stage_at_request"`
	Fulfilled      bool   `json:"fulfilled"`
	Expired        bool   `json:"expired,omitempty"`
	CreatedAt      string `json:"created_at"`
	FulfilledAt    string `json:"fulfilled_at,omitempty"`
}

func runPendingMode(ctx context.Context, store *state.Store, jsonOut bool) error {
	reqs, err := store.Pending(ctx)
	if err != nil {
		return err
	}
	return printRequests(reqs, jsonOut)
}

func runRequestMode(ctx context.Context, store *state.Store, limit int, jsonOut bool) error {
	reqs, err := store.ListRequests(ctx, limit)
	if err != nil {
		return err
	}
	return printRequests(reqs, jsonOut)
}

func printRequests(reqs []evolution.Request, jsonOut bool) error {
	rows := make([]requestRow, len(reqs))
	for i, r := range reqs {
		rows[i] = requestRow{
			RequestID:      r.ID,
			AssetID:        uint64(r.AssetID),
			Requester:      string(r.Requester),
			StageAtRequest: r.StageAtRequest,
			Fulfilled:      r.Fulfilled,
			Expired:        r.Expired,
			CreatedAt:      r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if !r.FulfilledAt.IsZero() {
			rows[i].FulfilledAt = r.FulfilledAt.Format("2006-01-02T15:04:05Z")
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no requests found")
		return nil
	}
	fmt.Printf("%-12s  %6s  %-12s  %5s  %-9s  %s\n", "Request", "Asset", "Requester", "Stage", "Fulfilled", "Created")
	fmt.Printf("%-12s+-%6s+-%-12s+-%5s+-%-9s+-%s\n", "------------", "------", "------------", "-----", "---------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %6d  %-12s  %5d  %-9v  %s\n",
			shortID(r.RequestID), r.AssetID, r.Requester, r.StageAtRequest, r.Fulfilled, r.CreatedAt)
	}
	return nil
}

// #endregion request-mode

// #region output

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k]
	}
	return strings.Join(parts, " ")
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
