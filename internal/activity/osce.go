package activity

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/gateway"
)

// Deps bundles the collaborators shared by the specialized engines.
type Deps struct {
	Rec        Recorder
	Log        zerolog.Logger
	Rng        *rand.Rand
	OnComplete func(Result)
}

func (d *Deps) fill() {
	if d.Rng == nil {
		d.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// CaseItem is one OSCE case with its sub-questions.
type CaseItem struct {
	Case      content.OSCECase
	Questions []content.OSCEQuestion
}

// BuildCaseItems pairs cases with their sub-questions. Orphan cases — cases
// with no associated question — are filtered out here, before any shuffling.
func BuildCaseItems(snap *content.Snapshot) []CaseItem {
	var out []CaseItem
	for _, c := range snap.OSCECases {
		qs := snap.QuestionsForCase(c.ID)
		if len(qs) == 0 {
			continue
		}
		out = append(out, CaseItem{Case: c, Questions: qs})
	}
	return out
}

// osceSlot is one sub-question position in the flattened run order.
type osceSlot struct {
	caseIdx int
	q       content.OSCEQuestion
}

// OSCESession runs a set of cases. MCQ sub-questions score automatically;
// essay sub-questions use reveal-then-self-report, since free text cannot be
// auto-graded.
type OSCESession struct {
	mu sync.Mutex

	id    string
	title string
	cfg   Config

	cases       []CaseItem
	slots       []osceSlot
	answers     []ItemAnswer
	revealed    []bool
	optionOrder [][]int
	idx         int
	score       int
	phase       Phase

	timerGen    int
	itemToken   *CancelToken
	globalToken *CancelToken
	remaining   time.Duration

	deps   Deps
	result *Result
}

// NewOSCESession launches an OSCE run over the given cases.
func NewOSCESession(title string, cases []CaseItem, cfg Config, deps Deps) (*OSCESession, error) {
	deps.fill()

	var slots []osceSlot
	for ci, c := range cases {
		for _, q := range c.Questions {
			slots = append(slots, osceSlot{caseIdx: ci, q: q})
		}
	}
	if len(slots) == 0 {
		return nil, ErrNoItems
	}

	s := &OSCESession{
		id:       uuid.NewString(),
		title:    title,
		cfg:      cfg,
		cases:    cases,
		slots:    slots,
		answers:  make([]ItemAnswer, len(slots)),
		revealed: make([]bool, len(slots)),
		deps:     deps,
	}
	s.optionOrder = make([][]int, len(slots))
	for i, slot := range slots {
		if cfg.ReviewMode || cfg.Simulation {
			s.optionOrder[i] = identity(len(slot.q.Options))
		} else {
			s.optionOrder[i] = deps.Rng.Perm(len(slot.q.Options))
		}
	}

	if !cfg.ReviewMode {
		if cfg.TotalTime > 0 {
			s.globalToken = StartCountdown(cfg.TotalTime, s.tick, s.expireGlobal)
		}
		s.mu.Lock()
		s.armTimerLocked()
		s.mu.Unlock()
	}
	return s, nil
}

// ActivityKind implements Activity.
func (s *OSCESession) ActivityKind() Kind { return KindOSCE }

// Completed implements Activity.
func (s *OSCESession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseCompleted
}

// Terminate implements Activity.
func (s *OSCESession) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseCompleted {
		return
	}
	s.phase = PhaseCompleted
	s.cancelTimersLocked()
}

// ID returns the session id.
func (s *OSCESession) ID() string { return s.id }

// Len returns the number of sub-questions across all cases.
func (s *OSCESession) Len() int { return len(s.slots) }

// CurrentCase returns the case of the current sub-question.
func (s *OSCESession) CurrentCase() content.OSCECase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[s.slots[s.idx].caseIdx].Case
}

// CurrentQuestion returns the current sub-question.
func (s *OSCESession) CurrentQuestion() content.OSCEQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[s.idx].q
}

// Options returns the current MCQ sub-question's options in display order.
func (s *OSCESession) Options() []content.AnswerOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.slots[s.idx].q
	out := make([]content.AnswerOption, 0, len(q.Options))
	for _, src := range s.optionOrder[s.idx] {
		out = append(out, q.Options[src])
	}
	return out
}

// AnswerMCQ records a selection for the current MCQ sub-question. First
// answer wins; later selections are no-ops.
func (s *OSCESession) AnswerMCQ(displayIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress || s.cfg.ReviewMode {
		return
	}
	slot := s.slots[s.idx]
	if slot.q.Kind != content.OSCEKindMCQ {
		return
	}
	order := s.optionOrder[s.idx]
	if displayIndex < 0 || displayIndex >= len(order) {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return
	}

	opt := slot.q.Options[order[displayIndex]]
	s.answers[s.idx] = ItemAnswer{State: Answered, Choice: opt.Text, Correct: opt.IsCorrect}
	if opt.IsCorrect {
		s.score++
	} else if !s.cfg.Simulation {
		record(s.deps.Rec, gateway.EventLogIncorrectAnswer, map[string]any{
			"questionId": slot.q.ID,
			"chosen":     opt.Text,
		})
	}
	s.cancelItemTimerLocked()
}

// Reveal shows the model answer of the current essay sub-question and
// returns it. Self-grading is only accepted after the reveal.
func (s *OSCESession) Reveal() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.slots[s.idx].q
	if q.Kind != content.OSCEKindEssay {
		return "", false
	}
	s.revealed[s.idx] = true
	return q.ModelAnswer, true
}

// SelfGrade records the user's own verdict on an essay sub-question.
func (s *OSCESession) SelfGrade(correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress || s.cfg.ReviewMode {
		return
	}
	slot := s.slots[s.idx]
	if slot.q.Kind != content.OSCEKindEssay || !s.revealed[s.idx] {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return
	}
	choice := "self: incorrect"
	if correct {
		choice = "self: correct"
	}
	s.answers[s.idx] = ItemAnswer{State: Answered, Choice: choice, Correct: correct}
	if correct {
		s.score++
	}
	s.cancelItemTimerLocked()
}

// Next advances to the following sub-question; past the last one the run
// completes (except in review mode).
func (s *OSCESession) Next() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	if s.idx+1 >= len(s.slots) {
		if s.cfg.ReviewMode {
			s.mu.Unlock()
			return
		}
		s.completeLocked() // unlocks
		return
	}
	s.idx++
	s.armTimerLocked()
	s.mu.Unlock()
}

// Prev moves back one sub-question.
func (s *OSCESession) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress || s.idx == 0 {
		return
	}
	s.idx--
	s.armTimerLocked()
}

// End forces completion.
func (s *OSCESession) End() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.completeLocked() // unlocks
}

// Score returns the running score.
func (s *OSCESession) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Remaining returns the remaining time reported by the last timer tick.
func (s *OSCESession) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns the final result once the session is completed.
func (s *OSCESession) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// ------------------------- internals -------------------------

func (s *OSCESession) armTimerLocked() {
	s.cancelItemTimerLocked()
	if s.cfg.TimePerItem <= 0 || s.cfg.ReviewMode {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.remaining = s.cfg.TimePerItem
	s.itemToken = StartCountdown(s.cfg.TimePerItem, s.tick, func() { s.expireItem(gen) })
}

func (s *OSCESession) tick(remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return
	}
	s.remaining = remaining
}

func (s *OSCESession) expireItem(gen int) {
	s.mu.Lock()
	if s.phase != PhaseInProgress || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	if s.answers[s.idx].State == Unanswered {
		s.answers[s.idx] = ItemAnswer{State: TimedOut, Choice: NoAnswer}
	}
	if s.idx+1 >= len(s.slots) {
		s.completeLocked() // unlocks
		return
	}
	s.idx++
	s.armTimerLocked()
	s.mu.Unlock()
}

func (s *OSCESession) expireGlobal() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.completeLocked() // unlocks
}

// completeLocked finalizes the run; must hold the lock, releases it before
// emitting events.
func (s *OSCESession) completeLocked() {
	s.phase = PhaseCompleted
	s.cancelTimersLocked()

	details := make([]ItemDetail, len(s.slots))
	score := 0
	for i, ans := range s.answers {
		chosen := ans.Choice
		if ans.State == Unanswered || chosen == "" {
			chosen = NoAnswer
		}
		details[i] = ItemDetail{ItemID: s.slots[i].q.ID, Chosen: chosen, Correct: ans.Correct}
		if ans.State == Answered && ans.Correct {
			score++
		}
	}
	s.score = score
	s.result = &Result{
		SessionID:  s.id,
		Kind:       KindOSCE,
		Title:      s.title,
		Score:      score,
		Total:      len(s.slots),
		Reviewable: !s.cfg.ReviewMode,
		Details:    details,
	}
	res := *s.result
	rec := s.deps.Rec
	review := s.cfg.ReviewMode
	onComplete := s.deps.OnComplete
	s.mu.Unlock()

	if !review {
		record(rec, gateway.EventFinishOSCEQuiz, map[string]any{
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

func (s *OSCESession) cancelTimersLocked() {
	s.cancelItemTimerLocked()
	if s.globalToken != nil {
		s.globalToken.Cancel()
		s.globalToken = nil
	}
}

func (s *OSCESession) cancelItemTimerLocked() {
	s.timerGen++
	if s.itemToken != nil {
		s.itemToken.Cancel()
		s.itemToken = nil
	}
}
