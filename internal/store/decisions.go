package store

import (
	"fmt"

	"github.com/agentchattr/agentchattr/internal/apperr"
)

// AddDecision appends a new proposed decision. If the store already holds
// MaxDecisions live decisions, the oldest proposed decision is evicted
// first (spec.md §9 open-question resolution); if every live decision is
// already approved, the add is rejected instead of evicting approved
// guidance.
func (s *Store) AddDecision(owner, text, reason string) (Decision, error) {
	if len(text) == 0 || len(text) > MaxDecisionTextLen {
		return Decision{}, apperr.New(apperr.Validation, fmt.Sprintf("decision text must be 1..%d chars", MaxDecisionTextLen))
	}
	if len(reason) > MaxDecisionTextLen {
		return Decision{}, apperr.New(apperr.Validation, fmt.Sprintf("decision reason must be <=%d chars", MaxDecisionTextLen))
	}

	s.mu.Lock()

	var evicted *Decision
	if len(s.decisions) >= MaxDecisions {
		evictIdx := -1
		for i, d := range s.decisions {
			if d.Status == DecisionProposed {
				evictIdx = i
				break
			}
		}
		if evictIdx == -1 {
			s.mu.Unlock()
			return Decision{}, apperr.New(apperr.ResourceExhausted, "decision list is full and holds no proposed entries to evict")
		}
		e := s.decisions[evictIdx]
		if err := s.write(kindDecision, decisionPayload{Op: decisionOpDelete, Decision: e}); err != nil {
			s.mu.Unlock()
			return Decision{}, err
		}
		s.decisions = append(s.decisions[:evictIdx], s.decisions[evictIdx+1:]...)
		evicted = &e
	}

	s.decisionSeq++
	d := Decision{ID: s.decisionSeq, Owner: owner, Text: text, Reason: reason, Status: DecisionProposed}
	if err := s.write(kindDecision, decisionPayload{Op: decisionOpAdd, Decision: d}); err != nil {
		s.decisionSeq--
		s.mu.Unlock()
		return Decision{}, err
	}
	s.decisions = append(s.decisions, d)
	s.mu.Unlock()

	if evicted != nil {
		s.notify(EventDecision, *evicted)
	}
	s.notify(EventDecision, d)
	return d, nil
}

// ApproveDecision marks a proposed decision approved.
func (s *Store) ApproveDecision(id int64) (Decision, error) {
	return s.updateDecision(id, decisionOpApprove, func(d *Decision) error {
		d.Status = DecisionApproved
		return nil
	})
}

// UnapproveDecision reverts an approved decision back to proposed.
func (s *Store) UnapproveDecision(id int64) (Decision, error) {
	return s.updateDecision(id, decisionOpUnapprove, func(d *Decision) error {
		d.Status = DecisionProposed
		return nil
	})
}

// EditDecision updates the text/reason of an existing decision.
func (s *Store) EditDecision(id int64, text, reason string) (Decision, error) {
	if len(text) == 0 || len(text) > MaxDecisionTextLen || len(reason) > MaxDecisionTextLen {
		return Decision{}, apperr.New(apperr.Validation, "decision text/reason out of bounds")
	}
	return s.updateDecision(id, decisionOpEdit, func(d *Decision) error {
		d.Text = text
		d.Reason = reason
		return nil
	})
}

// DeleteDecision removes a decision outright.
func (s *Store) DeleteDecision(id int64) error {
	s.mu.Lock()

	idx := s.decisionIndex(id)
	if idx == -1 {
		s.mu.Unlock()
		return apperr.New(apperr.Validation, fmt.Sprintf("decision %d does not exist", id))
	}
	d := s.decisions[idx]
	if err := s.write(kindDecision, decisionPayload{Op: decisionOpDelete, Decision: d}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.decisions = append(s.decisions[:idx], s.decisions[idx+1:]...)
	s.mu.Unlock()

	s.notify(EventDecision, d)
	return nil
}

// ListDecisions returns all live decisions in id order.
func (s *Store) ListDecisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

func (s *Store) decisionIndex(id int64) int {
	for i, d := range s.decisions {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) updateDecision(id int64, op decisionOp, mutate func(*Decision) error) (Decision, error) {
	s.mu.Lock()

	idx := s.decisionIndex(id)
	if idx == -1 {
		s.mu.Unlock()
		return Decision{}, apperr.New(apperr.Validation, fmt.Sprintf("decision %d does not exist", id))
	}
	d := s.decisions[idx]
	if err := mutate(&d); err != nil {
		s.mu.Unlock()
		return Decision{}, err
	}
	if err := s.write(kindDecision, decisionPayload{Op: op, Decision: d}); err != nil {
		s.mu.Unlock()
		return Decision{}, err
	}
	s.decisions[idx] = d
	s.mu.Unlock()

	s.notify(EventDecision, d)
	return d, nil
}

func (s *Store) applyDecisionReplay(p decisionPayload) {
	switch p.Op {
	case decisionOpAdd:
		s.decisions = append(s.decisions, p.Decision)
		if p.Decision.ID > s.decisionSeq {
			s.decisionSeq = p.Decision.ID
		}
	case decisionOpApprove, decisionOpUnapprove, decisionOpEdit:
		if idx := s.decisionIndex(p.Decision.ID); idx != -1 {
			s.decisions[idx] = p.Decision
		}
	case decisionOpDelete:
		if idx := s.decisionIndex(p.Decision.ID); idx != -1 {
			s.decisions = append(s.decisions[:idx], s.decisions[idx+1:]...)
		}
	}
}
