package archive

import (
	"context"
	"time"

	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/session"
)

// Session is one finished run as the archive stores it.
type Session struct {
	ID        string
	Config    session.Config
	Identity  string
	StoppedBy string
	Started   time.Time
	Ended     time.Time
	Samples   []sample.Sample
}

// Entry is the summary row returned by Recent.
type Entry struct {
	ID          string
	Started     time.Time
	Ended       time.Time
	StoppedBy   string
	Mode        string
	Voltage     float64
	Current     float64
	SampleCount int
	Notes       string
}

// Service is the archive as the rest of the program sees it. A disabled
// archive still satisfies it with no-ops.
type Service interface {
	Record(ctx context.Context, s Session) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Repository persists sessions.
type Repository interface {
	Store(ctx context.Context, s Session) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
