// Package logging journals engine notifications into the SQLite event_log
// table and reads them back for inspection.
package logging

import "time"

// #region event-entry
// EventEntry is a single row in the event_log table.
type EventEntry struct {
	EventID    string
	Kind       string
	AssetID    uint64
	Attributes map[string]string
	CreatedAt  time.Time
}

// #endregion event-entry
