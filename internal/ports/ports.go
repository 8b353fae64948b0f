package ports

import (
	"context"
	"iter"
	"time"

	"toggl-earnings/internal/domain"
)

// TimeTracker yields normalized time entries from Toggl.
// The sequence is lazy: the request is issued when iteration starts and an
// error ends the sequence.
type TimeTracker interface {
	TimeEntries(ctx context.Context, from, to time.Time) iter.Seq2[domain.TimeEntry, error]
}

// SnapshotSink receives computed totals whenever they change.
// The interface is kept generic so other stores can be plugged in later.
type SnapshotSink interface {
	RecordSnapshot(ctx context.Context, s domain.Snapshot) error
}
