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

// Item is one unit of content inside an option-based session. Quiz items
// carry answer options; learning items are lectures (no options); theory
// items are self-graded topics.
type Item struct {
	ID       string
	Chapter  string
	Prompt   string
	ImageURL string
	Hint     string
	Options  []content.AnswerOption
}

// ItemAnswer is the recorded outcome of one item.
type ItemAnswer struct {
	State   ItemState
	Choice  string
	Correct bool
}

// Session is the shared option-based state machine used by the quiz,
// learning, and theory engines.
type Session struct {
	mu sync.Mutex

	id    string
	kind  Kind
	title string
	cfg   Config

	items       []Item
	optionOrder [][]int // display order of options, per item
	answers     []ItemAnswer
	flagged     map[int]bool
	viewed      map[int]bool // learning: lectures already logged
	idx         int
	score       int
	phase       Phase

	// timerGen invalidates countdown callbacks from a previous item or a
	// torn-down session: every start or cancel bumps it, and handlers
	// re-check it under the lock before mutating anything.
	timerGen    int
	itemToken   *CancelToken
	globalToken *CancelToken
	remaining   time.Duration

	rec        Recorder
	log        zerolog.Logger
	rng        *rand.Rand
	onComplete func(Result)

	result *Result
}

// SessionOption configures a Session at launch.
type SessionOption func(*Session)

// WithRecorder routes the session's fire-and-forget events.
func WithRecorder(rec Recorder) SessionOption { return func(s *Session) { s.rec = rec } }

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) SessionOption { return func(s *Session) { s.log = log } }

// WithRand injects the shuffle source, for deterministic tests.
func WithRand(rng *rand.Rand) SessionOption { return func(s *Session) { s.rng = rng } }

// WithOnComplete registers a callback invoked once with the final result.
func WithOnComplete(fn func(Result)) SessionOption { return func(s *Session) { s.onComplete = fn } }

// NewSession launches an option-based session over items. It returns
// ErrNoItems when items is empty.
func NewSession(kind Kind, title string, items []Item, cfg Config, opts ...SessionOption) (*Session, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	s := &Session{
		id:      uuid.NewString(),
		kind:    kind,
		title:   title,
		cfg:     cfg,
		items:   items,
		answers: make([]ItemAnswer, len(items)),
		flagged: make(map[int]bool),
		viewed:  make(map[int]bool),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Options are shuffled per item except in review and simulation modes,
	// where the source order is preserved verbatim.
	s.optionOrder = make([][]int, len(items))
	for i, it := range items {
		if cfg.ReviewMode || cfg.Simulation {
			s.optionOrder[i] = identity(len(it.Options))
		} else {
			s.optionOrder[i] = s.rng.Perm(len(it.Options))
		}
	}

	if cfg.ReviewMode {
		s.replayPastAnswers()
	}

	if !cfg.ReviewMode {
		if cfg.TotalTime > 0 {
			s.globalToken = s.startGlobal(cfg.TotalTime)
		}
		s.armItemTimer()
	}
	s.enterItem()
	return s, nil
}

// ActivityKind implements Activity.
func (s *Session) ActivityKind() Kind { return s.kind }

// Completed implements Activity.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseCompleted
}

// Terminate implements Activity: cancel timers and accept no further input,
// without emitting a finish event.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseCompleted {
		return
	}
	s.phase = PhaseCompleted
	s.cancelTimersLocked()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Len returns the number of items.
func (s *Session) Len() int { return len(s.items) }

// CurrentIndex returns the index of the current item.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// CurrentItem returns the current item.
func (s *Session) CurrentItem() Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[s.idx]
}

// Options returns the current item's options in display order.
func (s *Session) Options() []content.AnswerOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[s.idx]
	out := make([]content.AnswerOption, 0, len(it.Options))
	for _, src := range s.optionOrder[s.idx] {
		out = append(out, it.Options[src])
	}
	return out
}

// Hint returns the current item's hint. Hints are disabled in simulation.
func (s *Session) Hint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Simulation {
		return ""
	}
	return s.items[s.idx].Hint
}

// ItemAnswerAt returns the recorded answer of item i.
func (s *Session) ItemAnswerAt(i int) ItemAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[i]
}

// Score returns the running score.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Remaining returns the remaining time reported by the last timer tick.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Answer records a selection for the current item, identified by its display
// position. At most one answer is accepted per item; later selections are
// no-ops. In review mode selections are ignored entirely.
func (s *Session) Answer(displayIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress || s.cfg.ReviewMode {
		return
	}
	order := s.optionOrder[s.idx]
	if displayIndex < 0 || displayIndex >= len(order) {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return // first answer wins
	}

	opt := s.items[s.idx].Options[order[displayIndex]]
	s.answers[s.idx] = ItemAnswer{State: Answered, Choice: opt.Text, Correct: opt.IsCorrect}
	s.settleAnswerLocked(s.items[s.idx], opt.Text, opt.IsCorrect)
}

// SelfGrade records a self-reported outcome for the current item. Used by
// the theory engine, whose items have no selectable options.
func (s *Session) SelfGrade(correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress || s.cfg.ReviewMode {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return
	}
	choice := "incorrect"
	if correct {
		choice = "correct"
	}
	s.answers[s.idx] = ItemAnswer{State: Answered, Choice: choice, Correct: correct}
	s.settleAnswerLocked(s.items[s.idx], choice, correct)
}

// settleAnswerLocked applies scoring and mistake logging after an answer is
// recorded, and stops the per-item countdown.
func (s *Session) settleAnswerLocked(it Item, choice string, correct bool) {
	if correct {
		s.score++
		if s.cfg.PracticeMistakes {
			record(s.rec, gateway.EventLogCorrectedMistake, map[string]any{
				"questionId": it.ID,
			})
		}
	} else if !s.cfg.Simulation && !s.cfg.PracticeMistakes {
		record(s.rec, gateway.EventLogIncorrectAnswer, map[string]any{
			"questionId": it.ID,
			"chosen":     choice,
		})
	}
	s.cancelItemTimerLocked()
}

// Next advances to the following item. Moving past the last item completes
// the session, except in review mode where navigation stops at the end.
func (s *Session) Next() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	if s.idx+1 >= len(s.items) {
		if s.cfg.ReviewMode {
			s.mu.Unlock()
			return
		}
		s.completeLocked() // unlocks
		return
	}
	s.idx++
	s.armItemTimerLocked()
	s.mu.Unlock()
	s.enterItem()
}

// Prev moves back one item. The previous item's answer stays as recorded.
func (s *Session) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress || s.idx == 0 {
		return
	}
	s.idx--
	s.armItemTimerLocked()
}

// ToggleFlag flags or unflags item i for later review.
func (s *Session) ToggleFlag(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.items) {
		return
	}
	s.flagged[i] = !s.flagged[i]
}

// FlaggedIndices returns the flagged item indices.
func (s *Session) FlaggedIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for i := 0; i < len(s.items); i++ {
		if s.flagged[i] {
			out = append(out, i)
		}
	}
	return out
}

// End forces completion regardless of how many items are answered.
func (s *Session) End() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.completeLocked() // unlocks
}

// Result returns the final result once the session is completed.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// ------------------------- internals -------------------------

// enterItem handles side effects of arriving at the current item. Learning
// sessions log each lecture view once.
func (s *Session) enterItem() {
	s.mu.Lock()
	if s.kind != KindLearning || s.cfg.ReviewMode || s.phase != PhaseInProgress || s.viewed[s.idx] {
		s.mu.Unlock()
		return
	}
	s.viewed[s.idx] = true
	it := s.items[s.idx]
	// Viewing counts as completing the item for the learning engine.
	if s.answers[s.idx].State == Unanswered {
		s.answers[s.idx] = ItemAnswer{State: Answered, Choice: "viewed", Correct: true}
		s.score++
	}
	rec := s.rec
	s.mu.Unlock()
	record(rec, gateway.EventViewLecture, map[string]any{"lectureId": it.ID, "title": it.Prompt})
}

// replayPastAnswers restores a past run's answers for review.
func (s *Session) replayPastAnswers() {
	for i, choice := range s.cfg.PastAnswers {
		if i >= len(s.items) {
			break
		}
		if choice == "" || choice == NoAnswer {
			s.answers[i] = ItemAnswer{State: TimedOut, Choice: NoAnswer}
			continue
		}
		correct := false
		for _, opt := range s.items[i].Options {
			if opt.Text == choice && opt.IsCorrect {
				correct = true
				break
			}
		}
		s.answers[i] = ItemAnswer{State: Answered, Choice: choice, Correct: correct}
	}
}

// armItemTimer / armItemTimerLocked restart the per-item countdown.
func (s *Session) armItemTimer() {
	s.mu.Lock()
	s.armItemTimerLocked()
	s.mu.Unlock()
}

func (s *Session) armItemTimerLocked() {
	s.cancelItemTimerLocked()
	if s.cfg.TimePerItem <= 0 || s.cfg.ReviewMode {
		return
	}
	if s.answers[s.idx].State != Unanswered {
		return // revisiting a settled item does not restart its clock
	}
	s.timerGen++
	gen := s.timerGen
	s.remaining = s.cfg.TimePerItem
	s.itemToken = StartCountdown(s.cfg.TimePerItem,
		func(remaining time.Duration) { s.onTick(gen, remaining) },
		func() { s.onItemExpire(gen) },
	)
}

func (s *Session) startGlobal(d time.Duration) *CancelToken {
	gen := s.timerGen
	return StartCountdown(d,
		func(remaining time.Duration) { s.onTick(gen, remaining) },
		func() { s.onGlobalExpire() },
	)
}

func (s *Session) onTick(gen int, remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return
	}
	if s.cfg.TimePerItem > 0 && gen != s.timerGen {
		return
	}
	s.remaining = remaining
}

// onItemExpire is the per-item timeout handler. A stale generation means the
// countdown was cancelled or superseded; the callback must then have no
// effect.
func (s *Session) onItemExpire(gen int) {
	s.mu.Lock()
	if s.phase != PhaseInProgress || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	if s.answers[s.idx].State == Unanswered {
		it := s.items[s.idx]
		s.answers[s.idx] = ItemAnswer{State: TimedOut, Choice: NoAnswer}
		if !s.cfg.Simulation && !s.cfg.PracticeMistakes {
			record(s.rec, gateway.EventLogIncorrectAnswer, map[string]any{
				"questionId": it.ID,
				"chosen":     NoAnswer,
			})
		}
	}
	// Timeout advances like navigation: past the last item, the run ends.
	if s.idx+1 >= len(s.items) {
		s.completeLocked() // unlocks
		return
	}
	s.idx++
	s.armItemTimerLocked()
	s.mu.Unlock()
	s.enterItem()
}

// onGlobalExpire forces completion when the simulation countdown ends.
func (s *Session) onGlobalExpire() {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.completeLocked() // unlocks
}

// completeLocked finalizes the session. It must be called with the lock held
// and releases it before emitting events.
func (s *Session) completeLocked() {
	s.phase = PhaseCompleted
	s.cancelTimersLocked()

	details := make([]ItemDetail, len(s.items))
	score := 0
	for i, ans := range s.answers {
		chosen := ans.Choice
		if ans.State == Unanswered || chosen == "" {
			chosen = NoAnswer
		}
		details[i] = ItemDetail{ItemID: s.items[i].ID, Chosen: chosen, Correct: ans.Correct}
		if ans.State == Answered && ans.Correct {
			score++
		}
	}
	s.score = score
	s.result = &Result{
		SessionID:  s.id,
		Kind:       s.kind,
		Title:      s.title,
		Score:      score,
		Total:      len(s.items),
		Reviewable: !s.cfg.ReviewMode,
		Details:    details,
	}
	res := *s.result
	rec := s.rec
	review := s.cfg.ReviewMode
	onComplete := s.onComplete
	s.mu.Unlock()

	if !review {
		if event := finishEvent(s.kind); event != "" {
			payload := map[string]any{
				"title":   res.Title,
				"score":   res.Score,
				"total":   res.Total,
				"details": res.Details,
			}
			record(rec, event, payload)
		}
	}
	if onComplete != nil {
		onComplete(res)
	}
}

func (s *Session) cancelTimersLocked() {
	s.cancelItemTimerLocked()
	if s.globalToken != nil {
		s.globalToken.Cancel()
		s.globalToken = nil
	}
}

func (s *Session) cancelItemTimerLocked() {
	s.timerGen++
	if s.itemToken != nil {
		s.itemToken.Cancel()
		s.itemToken = nil
	}
}

// finishEvent maps a session kind to its completion event. Learning logs per
// lecture instead of per run.
func finishEvent(kind Kind) string {
	switch kind {
	case KindQuiz:
		return gateway.EventFinishQuiz
	case KindTheory:
		return gateway.EventSaveTheoryLog
	default:
		return ""
	}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
