package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
	StageCallDone Stage = "CALL_DONE"
	StageRowDone  Stage = "ROW_DONE"
)

// Outcome classifies how a call or row ended.
type Outcome string

// Supported outcomes.
const (
	OutcomeOK         Outcome = "ok"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeError      Outcome = "error"
)

// Event captures one piece of run progress.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Service names the external service for call events.
	Service string
	// Entity is the municipality name for row events.
	Entity string
	// Outcome classifies call and row events.
	Outcome Outcome
	// Dur is the call latency or the total run time.
	Dur time.Duration
	// Note carries low-volume context such as missing columns or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageCallDone:
		if e.Service == "" {
			return errors.New("call event requires service")
		}
		if e.Outcome == "" {
			return errors.New("call event requires outcome")
		}
	case StageRowDone:
		if e.Entity == "" {
			return errors.New("row event requires entity")
		}
		if e.Outcome == "" {
			return errors.New("row event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
