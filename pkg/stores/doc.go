// Package stores provides the storage gateway for forageables: a SQLite
// implementation with embedded migrations, a change feed that publishes a
// notification for every row-affecting mutation, and live queries that
// re-run a snapshot query whenever the feed fires.
package stores
