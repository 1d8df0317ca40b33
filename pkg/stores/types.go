package stores

import (
	"context"
	"time"

	"github.com/kemicky/forage/pkg/forageable"
)

// Gateway is the persistence contract the view model is written against.
//
// Mutations publish a change notification only when they affect a row, so
// replacing or removing an unknown ID is a silent no-op.
type Gateway interface {
	// QueryAll returns a live query over every stored forageable,
	// ordered by ID.
	QueryAll() *Live[[]forageable.Forageable]

	// QueryByID returns a live query that yields nil when no record has id.
	QueryByID(id int64) *Live[*forageable.Forageable]

	// Insert stores f and assigns f.ID.
	Insert(ctx context.Context, f *forageable.Forageable) error

	// Replace overwrites every field of the record with f.ID.
	Replace(ctx context.Context, f *forageable.Forageable) error

	// Remove deletes the record with f.ID.
	Remove(ctx context.Context, f *forageable.Forageable) error
}

// ChangeKind describes what happened to the table.
type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeReplaced ChangeKind = "replaced"
	ChangeRemoved  ChangeKind = "removed"

	// ChangeExternal is published when another process wrote the database
	// file. ID is zero because the affected rows are unknown.
	ChangeExternal ChangeKind = "external"
)

// Change is a dirty notification published on the change feed.
type Change struct {
	Kind ChangeKind `json:"kind"`
	ID   int64      `json:"id,omitempty"`
}

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns bounds the pool. In-memory databases always use one
	// connection so every query sees the same database.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns bounds idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`

	// ConnMaxLifetime recycles connections after this long.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WatchExternal enables the fsnotify watcher that turns writes by other
	// processes into change notifications.
	WatchExternal bool `yaml:"watch_external"`
}

// IsMemory reports whether the config points at an in-memory database.
func (c Config) IsMemory() bool {
	return c.Path == ":memory:" || c.Path == "file::memory:"
}
