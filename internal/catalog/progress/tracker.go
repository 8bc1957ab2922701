// Package progress implements the per-field progress state machine.
//
// Each field key moves idle -> generating -> completed|error. Every Begin hands
// out a sequence number from one counter that only grows, so a result tagged
// with an older sequence can never overwrite a newer cycle, and a second
// terminal event for the same cycle is a no-op.
package progress

import (
	"fmt"

	"github.com/tair/product-console/internal/catalog/domain"
)

// Tracker holds progress state for every field key of a page session.
// It is not safe for concurrent use.
type Tracker struct {
	states map[domain.FieldKey]domain.ProgressState
	next   uint64
}

// NewTracker creates a tracker with every key idle
func NewTracker() *Tracker {
	return &Tracker{states: make(map[domain.FieldKey]domain.ProgressState)}
}

// Reset forgets all states; sequence numbers keep growing across resets
func (t *Tracker) Reset() {
	t.states = make(map[domain.FieldKey]domain.ProgressState)
}

// State returns the state of key, idle when never touched
func (t *Tracker) State(key domain.FieldKey) domain.ProgressState {
	if st, ok := t.states[key]; ok {
		return st
	}
	return domain.IdleState()
}

// Current returns the sequence number of the cycle key is in, 0 if none
func (t *Tracker) Current(key domain.FieldKey) uint64 {
	return t.states[key].Seq
}

// Begin starts a new generating cycle from any phase
func (t *Tracker) Begin(key domain.FieldKey, label string) uint64 {
	t.next++
	t.states[key] = domain.ProgressState{
		Percent: 0,
		Phase:   domain.PhaseGenerating,
		Label:   label,
		Seq:     t.next,
	}
	return t.next
}

// Accepts reports whether an event tagged seq may still change key.
// seq 0 means "whatever cycle is current".
func (t *Tracker) Accepts(key domain.FieldKey, seq uint64) bool {
	st := t.State(key)
	if seq != 0 && seq != st.Seq {
		return false
	}
	return !st.Phase.IsTerminal()
}

// Reopen returns the seq an incoming push event should use. An untagged event
// for a key whose last cycle already ended starts a new cycle, since the
// backend regenerated the field on its own.
func (t *Tracker) Reopen(key domain.FieldKey, seq uint64) uint64 {
	if seq != 0 || !t.State(key).Phase.IsTerminal() {
		return seq
	}
	return t.Begin(key, "0%")
}

// Complete ends the cycle seq successfully. It returns false, changing
// nothing, when seq is stale or the cycle already ended.
func (t *Tracker) Complete(key domain.FieldKey, seq uint64, label string) bool {
	return t.finish(key, seq, domain.PhaseCompleted, label)
}

// Fail ends the cycle seq with an error, under the same rules as Complete
func (t *Tracker) Fail(key domain.FieldKey, seq uint64, label string) bool {
	return t.finish(key, seq, domain.PhaseError, label)
}

func (t *Tracker) finish(key domain.FieldKey, seq uint64, phase domain.Phase, label string) bool {
	if !t.Accepts(key, seq) {
		return false
	}
	st := t.State(key)
	t.states[key] = domain.ProgressState{
		Percent: 100,
		Phase:   phase,
		Label:   label,
		Seq:     st.Seq,
	}
	return true
}

// Report applies a pushed progress update. A terminal phase ends the cycle;
// otherwise the percentage may only grow within the cycle.
func (t *Tracker) Report(key domain.FieldKey, seq uint64, percent int, phase domain.Phase) bool {
	switch phase {
	case domain.PhaseCompleted:
		return t.Complete(key, seq, domain.LabelDone)
	case domain.PhaseError:
		return t.Fail(key, seq, domain.LabelError)
	}

	if !t.Accepts(key, seq) {
		return false
	}

	st := t.State(key)
	if st.Phase == domain.PhaseIdle {
		// server-initiated work the page never started
		st = domain.ProgressState{Phase: domain.PhaseGenerating}
	}

	percent = clamp(percent)
	if percent < st.Percent {
		percent = st.Percent
	}
	st.Percent = percent
	st.Label = fmt.Sprintf("%d%%", percent)
	t.states[key] = st
	return true
}

// Settle marks a field completed at render time because it already holds content
func (t *Tracker) Settle(key domain.FieldKey, label string) {
	t.states[key] = domain.ProgressState{
		Percent: 100,
		Phase:   domain.PhaseCompleted,
		Label:   label,
		Seq:     t.states[key].Seq,
	}
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Overview is the page-wide confirmation summary
type Overview struct {
	Confirmed     int     `json:"confirmed"`
	Total         int     `json:"total"`
	Percent       float64 `json:"percent"`
	Counter       string  `json:"counter"`
	ExportVisible bool    `json:"export_visible"`
}

// Overall computes the summary; an empty list is 0%
func Overall(confirmed, total int) Overview {
	var percent float64
	if total > 0 {
		percent = float64(confirmed) / float64(total) * 100
	}
	return Overview{
		Confirmed:     confirmed,
		Total:         total,
		Percent:       percent,
		Counter:       fmt.Sprintf("%d/%d products confirmed", confirmed, total),
		ExportVisible: confirmed > 0,
	}
}
