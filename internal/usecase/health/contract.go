package health

import (
	"context"
	"time"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexReader reports the state of the embedding index snapshot.
type IndexReader interface {
	Size() int
	BuiltAt() time.Time
}
