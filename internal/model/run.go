package model

import (
	"slices"
	"time"
)

// EntityState is the position of one entity in the per-entity pipeline.
type EntityState string

const (
	StatePending    EntityState = "pending"
	StateQuerying   EntityState = "querying"
	StateSearching  EntityState = "searching"
	StateFetching   EntityState = "fetching"
	StateExtracting EntityState = "extracting"
	StateDone       EntityState = "done"
)

// BatchRun is one end-to-end execution over all entities in a source. It
// has a single writer; everyone else works on Clone copies.
type BatchRun struct {
	ID         string              `json:"id"`
	Source     string              `json:"source"`
	Spec       QuerySpec           `json:"spec"`
	Total      int                 `json:"total"`
	Completed  int                 `json:"completed"`
	Outcomes   []ExtractionOutcome `json:"outcomes"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Cancelled  bool                `json:"cancelled"`
}

// Finished reports whether the run has been finalized.
func (r *BatchRun) Finished() bool {
	return r.FinishedAt != nil
}

// SortOutcomes orders outcomes by entity ID, i.e. source order.
func (r *BatchRun) SortOutcomes() {
	slices.SortStableFunc(r.Outcomes, func(a, b ExtractionOutcome) int {
		return a.EntityID - b.EntityID
	})
}

// Clone returns a copy that shares no mutable state with r.
func (r *BatchRun) Clone() BatchRun {
	c := *r
	c.Spec.Fields = slices.Clone(r.Spec.Fields)
	c.Outcomes = slices.Clone(r.Outcomes)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Summary tallies the outcomes of the run by status.
func (r *BatchRun) Summary() Summary {
	s := Summary{Total: r.Total}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusOK:
			s.OK++
		case StatusPartial:
			s.Partial++
		default:
			s.Failed++
		}
	}
	return s
}

// Summary counts outcomes by status at the end of a run.
type Summary struct {
	Total   int `json:"total"`
	OK      int `json:"ok"`
	Partial int `json:"partial"`
	Failed  int `json:"failed"`
}

// Progress is emitted after each entity completes.
type Progress struct {
	RunID     string             `json:"run_id"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Last      *ExtractionOutcome `json:"last,omitempty"`
}
