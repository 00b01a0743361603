package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studykit/studykit/internal/gateway"
)

// MatchSetSize is the fixed number of premise/answer pairs per set.
const MatchSetSize = 5

// Pair is one premise with its matching answer. A match is correct iff the
// dropped answer's id equals the premise's id.
type Pair struct {
	ID      string
	Premise string
	Answer  string
}

// matchSet groups MatchSetSize pairs with a display order for the answer
// column.
type matchSet struct {
	pairs       []Pair
	answerOrder []int
}

// MatchingSession runs premise/answer matching over fixed-size sets of
// five. Credit is per slot, not per set.
type MatchingSession struct {
	mu sync.Mutex

	id    string
	title string
	cfg   Config

	sets       []matchSet
	placements []map[string]string // per set: premise id → placed answer id
	locked     []bool              // set submitted and scored
	setIdx     int
	score      int
	phase      Phase

	timerGen    int
	setToken    *CancelToken
	globalToken *CancelToken
	remaining   time.Duration

	deps   Deps
	result *Result
}

// NewMatchingSession launches a matching run. Pairs are chunked into sets of
// MatchSetSize; a trailing partial set is dropped. Fewer than MatchSetSize
// pairs is a validation failure.
func NewMatchingSession(title string, pairs []Pair, cfg Config, deps Deps) (*MatchingSession, error) {
	deps.fill()

	if len(pairs) < MatchSetSize {
		return nil, fmt.Errorf("%w: need at least %d pairs, have %d", ErrNoItems, MatchSetSize, len(pairs))
	}

	full := len(pairs) / MatchSetSize * MatchSetSize
	var sets []matchSet
	for i := 0; i < full; i += MatchSetSize {
		set := matchSet{pairs: pairs[i : i+MatchSetSize]}
		if cfg.ReviewMode || cfg.Simulation {
			set.answerOrder = identity(MatchSetSize)
		} else {
			set.answerOrder = deps.Rng.Perm(MatchSetSize)
		}
		sets = append(sets, set)
	}

	s := &MatchingSession{
		id:         uuid.NewString(),
		title:      title,
		cfg:        cfg,
		sets:       sets,
		placements: make([]map[string]string, len(sets)),
		locked:     make([]bool, len(sets)),
		deps:       deps,
	}
	for i := range s.placements {
		s.placements[i] = make(map[string]string, MatchSetSize)
	}

	if !cfg.ReviewMode {
		if cfg.TotalTime > 0 {
			s.globalToken = StartCountdown(cfg.TotalTime, s.tick, s.expireGlobal)
		}
		s.mu.Lock()
		s.armSetTimerLocked()
		s.mu.Unlock()
	}
	return s, nil
}

// ActivityKind implements Activity.
func (s *MatchingSession) ActivityKind() Kind { return KindMatching }

// Completed implements Activity.
func (s *MatchingSession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseCompleted
}

// Terminate implements Activity.
func (s *MatchingSession) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseCompleted {
		return
	}
	s.phase = PhaseCompleted
	s.cancelTimersLocked()
}

// ID returns the session id.
func (s *MatchingSession) ID() string { return s.id }

// Sets returns the number of sets in the run.
func (s *MatchingSession) Sets() int { return len(s.sets) }

// CurrentSet returns the index of the current set.
func (s *MatchingSession) CurrentSet() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setIdx
}

// Premises returns the current set's premises in source order.
func (s *MatchingSession) Premises() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pair, len(s.sets[s.setIdx].pairs))
	copy(out, s.sets[s.setIdx].pairs)
	return out
}

// Answers returns the current set's answers in display order.
func (s *MatchingSession) Answers() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[s.setIdx]
	out := make([]Pair, 0, len(set.pairs))
	for _, src := range set.answerOrder {
		out = append(out, set.pairs[src])
	}
	return out
}

// Place drops the answer with answerID onto the premise with premiseID in
// the current set. Slots may be re-placed until the set is submitted.
func (s *MatchingSession) Place(premiseID, answerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress || s.cfg.ReviewMode || s.locked[s.setIdx] {
		return
	}
	if !s.inCurrentSet(premiseID) || !s.inCurrentSet(answerID) {
		return
	}
	s.placements[s.setIdx][premiseID] = answerID
}

// SubmitSet locks the current set, scores it per slot, and advances; past
// the last set the run completes.
func (s *MatchingSession) SubmitSet() {
	s.mu.Lock()
	if s.phase != PhaseInProgress || s.cfg.ReviewMode {
		s.mu.Unlock()
		return
	}
	s.submitCurrentLocked()
	if s.setIdx+1 >= len(s.sets) {
		s.completeLocked() // unlocks
		return
	}
	s.setIdx++
	s.armSetTimerLocked()
	s.mu.Unlock()
}

// End forces completion; unsubmitted sets are scored as they stand.
func (s *MatchingSession) End() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	for i := range s.sets {
		if !s.locked[i] {
			s.scoreSetLocked(i)
			s.locked[i] = true
		}
	}
	s.completeLocked() // unlocks
}

// Score returns the running score.
func (s *MatchingSession) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Remaining returns the remaining time reported by the last timer tick.
func (s *MatchingSession) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns the final result once the session is completed.
func (s *MatchingSession) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// ------------------------- internals -------------------------

func (s *MatchingSession) inCurrentSet(id string) bool {
	for _, p := range s.sets[s.setIdx].pairs {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *MatchingSession) submitCurrentLocked() {
	if !s.locked[s.setIdx] {
		s.scoreSetLocked(s.setIdx)
		s.locked[s.setIdx] = true
	}
	s.cancelSetTimerLocked()
}

// scoreSetLocked adds one point per correctly matched slot.
func (s *MatchingSession) scoreSetLocked(i int) {
	for _, p := range s.sets[i].pairs {
		if s.placements[i][p.ID] == p.ID {
			s.score++
		}
	}
}

func (s *MatchingSession) armSetTimerLocked() {
	s.cancelSetTimerLocked()
	if s.cfg.TimePerItem <= 0 || s.cfg.ReviewMode {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.remaining = s.cfg.TimePerItem
	s.setToken = StartCountdown(s.cfg.TimePerItem, s.tick, func() { s.expireSet(gen) })
}

func (s *MatchingSession) tick(remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return
	}
	s.remaining = remaining
}

// expireSet auto-submits the current set when its countdown runs out.
func (s *MatchingSession) expireSet(gen int) {
	s.mu.Lock()
	if s.phase != PhaseInProgress || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.submitCurrentLocked()
	if s.setIdx+1 >= len(s.sets) {
		s.completeLocked() // unlocks
		return
	}
	s.setIdx++
	s.armSetTimerLocked()
	s.mu.Unlock()
}

func (s *MatchingSession) expireGlobal() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	for i := range s.sets {
		if !s.locked[i] {
			s.scoreSetLocked(i)
			s.locked[i] = true
		}
	}
	s.completeLocked() // unlocks
}

// completeLocked finalizes the run; must hold the lock, releases it before
// emitting events.
func (s *MatchingSession) completeLocked() {
	s.phase = PhaseCompleted
	s.cancelTimersLocked()

	var details []ItemDetail
	for i, set := range s.sets {
		for _, p := range set.pairs {
			placed := s.placements[i][p.ID]
			chosen := NoAnswer
			if placed != "" {
				chosen = s.answerText(i, placed)
			}
			details = append(details, ItemDetail{ItemID: p.ID, Chosen: chosen, Correct: placed == p.ID})
		}
	}
	s.result = &Result{
		SessionID:  s.id,
		Kind:       KindMatching,
		Title:      s.title,
		Score:      s.score,
		Total:      len(s.sets) * MatchSetSize,
		Reviewable: !s.cfg.ReviewMode,
		Details:    details,
	}
	res := *s.result
	rec := s.deps.Rec
	review := s.cfg.ReviewMode
	onComplete := s.deps.OnComplete
	s.mu.Unlock()

	if !review {
		record(rec, gateway.EventFinishMatchingQuiz, map[string]any{
			"title":   res.Title,
			"score":   res.Score,
			"total":   res.Total,
			"details": res.Details,
		})
	}
	if onComplete != nil {
		onComplete(res)
	}
}

func (s *MatchingSession) answerText(setIdx int, answerID string) string {
	for _, p := range s.sets[setIdx].pairs {
		if p.ID == answerID {
			return p.Answer
		}
	}
	return answerID
}

func (s *MatchingSession) cancelTimersLocked() {
	s.cancelSetTimerLocked()
	if s.globalToken != nil {
		s.globalToken.Cancel()
		s.globalToken = nil
	}
}

func (s *MatchingSession) cancelSetTimerLocked() {
	s.timerGen++
	if s.setToken != nil {
		s.setToken.Cancel()
		s.setToken = nil
	}
}
