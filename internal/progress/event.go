package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageSourceStart     Stage = "SOURCE_START"
	StageSourceGenerated Stage = "SOURCE_GENERATED"
	StageSourceDropped   Stage = "SOURCE_DROPPED"
	StageSourceAssembled Stage = "SOURCE_ASSEMBLED"
	StageRecordRetained  Stage = "RECORD_RETAINED"
	StageRecordDropped   Stage = "RECORD_DROPPED"
)

// Drop reasons attached to SOURCE_DROPPED and RECORD_DROPPED events.
const (
	ReasonGenerateFailed = "failed to generate"
	ReasonNoReleases     = "no releases found"
	ReasonNoneRetained   = "no valid releases"
	ReasonUnresolvable   = "unresolvable URL"
	ReasonMalformed      = "malformed record"
)

// Event captures one step of a catalog build.
type Event struct {
	// RunID identifies the build run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Source names the upstream source for every SOURCE_* and RECORD_* stage.
	Source string
	// Record is the record label (release, edition, arch) for RECORD_* stages.
	Record string
	// Count is the number of records generated, retained, or entries built.
	Count int
	// Reason explains a drop.
	Reason string
	// Dur is the elapsed time of the finished source or run.
	Dur  time.Duration
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
	case StageRunStart, StageRunDone:
	case StageSourceStart, StageSourceGenerated, StageSourceAssembled:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	case StageSourceDropped:
		if e.Source == "" || e.Reason == "" {
			return fmt.Errorf("%s requires source and reason", e.Stage)
		}
	case StageRecordRetained, StageRecordDropped:
		if e.Source == "" || e.Record == "" {
			return fmt.Errorf("%s requires source and record", e.Stage)
		}
		if e.Stage == StageRecordDropped && e.Reason == "" {
			return fmt.Errorf("%s requires reason", e.Stage)
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
