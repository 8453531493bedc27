package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/isocatalog/internal/progress"
)

// Source states reported by StatusSink.
const (
	StatePending    = "pending"
	StateGenerating = "generating"
	StateValidating = "validating"
	StateAssembled  = "assembled"
	StateDropped    = "dropped"
)

// SourceStatus is the latest known state of one source.
type SourceStatus struct {
	Name      string        `json:"name"`
	State     string        `json:"state"`
	Generated int           `json:"generated"`
	Retained  int           `json:"retained"`
	Dropped   int           `json:"dropped"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// RunStatus summarizes the most recent build run.
type RunStatus struct {
	RunID    string         `json:"run_id,omitempty"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished,omitzero"`
	Done     bool           `json:"done"`
	Entries  int            `json:"entries"`
	Sources  []SourceStatus `json:"sources"`
}

// StatusSink keeps an in-memory snapshot of the latest run for the ops API.
// A RUN_START with a new run id resets the snapshot.
type StatusSink struct {
	mu      sync.RWMutex
	run     RunStatus
	runID   [16]byte
	sources map[string]*SourceStatus
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{sources: make(map[string]*SourceStatus)}
}

// Consume folds the batch into the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	if evt.Stage == progress.StageRunStart {
		if evt.RunID != s.runID {
			s.runID = evt.RunID
			s.sources = make(map[string]*SourceStatus)
			s.run = RunStatus{RunID: uuid.UUID(evt.RunID).String()}
		}
		s.run.Started = evt.TS
		return
	}
	if evt.RunID != s.runID {
		return
	}
	if evt.Stage == progress.StageRunDone {
		s.run.Done = true
		s.run.Finished = evt.TS
		s.run.Entries = evt.Count
		return
	}

	src := s.sources[evt.Source]
	if src == nil {
		src = &SourceStatus{Name: evt.Source, State: StatePending}
		s.sources[evt.Source] = src
	}
	switch evt.Stage {
	case progress.StageSourceStart:
		src.State = StateGenerating
	case progress.StageSourceGenerated:
		src.State = StateValidating
		src.Generated = evt.Count
	case progress.StageRecordRetained:
		src.Retained++
	case progress.StageRecordDropped:
		src.Dropped++
	case progress.StageSourceAssembled:
		src.State = StateAssembled
		src.Duration = evt.Dur
	case progress.StageSourceDropped:
		src.State = StateDropped
		src.Reason = evt.Reason
		src.Duration = evt.Dur
	}
}

// Snapshot returns a copy of the current run status with sources sorted by
// name.
func (s *StatusSink) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.run
	out.Sources = make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		out.Sources = append(out.Sources, *src)
	}
	sort.Slice(out.Sources, func(i, j int) bool {
		return out.Sources[i].Name < out.Sources[j].Name
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
