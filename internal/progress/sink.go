package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

type stamped struct {
	next  Emitter
	runID [16]byte
	clock Clock
}

// Stamp returns an Emitter that fills in the run ID and, when unset, the
// timestamp before forwarding to next.
func Stamp(next Emitter, runID uuid.UUID, clock Clock) Emitter {
	if next == nil {
		next = Discard
	}
	return &stamped{next: next, runID: UUIDToBytes(runID), clock: clock}
}

func (s *stamped) Emit(evt Event) {
	evt.RunID = s.runID
	if evt.TS.IsZero() {
		if s.clock != nil {
			evt.TS = s.clock.Now()
		} else {
			evt.TS = time.Now().UTC()
		}
	}
	s.next.Emit(evt)
}
