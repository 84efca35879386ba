// Package state is the SQLite persistence layer: the durable table of
// in-flight evolution requests and the notification log schema.
package state

// #region stats
// Stats summarizes the database contents.
type Stats struct {
	Requests int
	Pending  int
	Events   int
}

// #endregion stats
