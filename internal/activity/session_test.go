package activity

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/gateway"
)

type recEvent struct {
	Type    string
	Payload map[string]any
}

// recSink captures fire-and-forget events for assertions.
type recSink struct {
	mu     sync.Mutex
	events []recEvent
}

func (r *recSink) Record(eventType string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recEvent{Type: eventType, Payload: payload})
}

func (r *recSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recSink) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func quizItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, Item{
			ID:      string(rune('a' + i)),
			Prompt:  "prompt",
			Chapter: "ch",
			Options: []content.AnswerOption{
				{Text: "right", IsCorrect: true},
				{Text: "wrong1"},
				{Text: "wrong2"},
			},
		})
	}
	return items
}

func testRand() *rand.Rand { return rand.New(rand.NewSource(1)) }

// answerBy selects the display option matching want ("right"/"wrong1"/...).
func answerBy(t *testing.T, s *Session, want string) {
	t.Helper()
	for i, opt := range s.Options() {
		if opt.Text == want {
			s.Answer(i)
			return
		}
	}
	t.Fatalf("option %q not found", want)
}

// fireItemTimeout simulates the per-item countdown expiring now.
func fireItemTimeout(s *Session) {
	s.mu.Lock()
	gen := s.timerGen
	s.mu.Unlock()
	s.onItemExpire(gen)
}

func TestNewSession_EmptyItemsIsValidationError(t *testing.T) {
	t.Parallel()
	_, err := NewSession(KindQuiz, "t", nil, Config{})
	require.ErrorIs(t, err, ErrNoItems)
}

// End-to-end scenario: a three-item mock exam with one correct answer, one
// incorrect answer, and one timeout must finish with score 1 and the detail
// list [correct, incorrect, "No Answer"].
func TestSession_MockExamScenario(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	s, err := NewSession(KindQuiz, "Mock Exam", quizItems(3),
		Config{TimePerItem: 10 * time.Second},
		WithRecorder(rec), WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	answerBy(t, s, "right")
	s.Next()
	answerBy(t, s, "wrong1")
	s.Next()
	fireItemTimeout(s) // item 3 expires unanswered → run completes

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
	require.Equal(t, 3, res.Total)
	require.Len(t, res.Details, 3)
	require.True(t, res.Details[0].Correct)
	require.Equal(t, "right", res.Details[0].Chosen)
	require.False(t, res.Details[1].Correct)
	require.Equal(t, "wrong1", res.Details[1].Chosen)
	require.Equal(t, NoAnswer, res.Details[2].Chosen)

	require.Equal(t, 1, rec.count(gateway.EventFinishQuiz))
	// One incorrect answer plus one timeout, both logged.
	require.Equal(t, 2, rec.count(gateway.EventLogIncorrectAnswer))
}

// At-most-one-answer: the first selection is recorded, the second is a no-op.
func TestSession_FirstAnswerWins(t *testing.T) {
	t.Parallel()
	s, err := NewSession(KindQuiz, "t", quizItems(1), Config{}, WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	answerBy(t, s, "wrong1")
	answerBy(t, s, "right") // must be ignored

	ans := s.ItemAnswerAt(0)
	require.Equal(t, Answered, ans.State)
	require.Equal(t, "wrong1", ans.Choice)
	require.False(t, ans.Correct)
	require.Equal(t, 0, s.Score())
}

// Score idempotence: recomputing the score from the final detail list equals
// the incrementally tracked running score.
func TestSession_ScoreIdempotence(t *testing.T) {
	t.Parallel()
	s, err := NewSession(KindQuiz, "t", quizItems(5), Config{}, WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	picks := []string{"right", "wrong2", "right", "wrong1", "right"}
	for i, p := range picks {
		answerBy(t, s, p)
		running := s.Score()
		require.LessOrEqual(t, running, i+1)
		s.Next()
	}

	res, ok := s.Result()
	require.True(t, ok)
	recomputed := 0
	for _, d := range res.Details {
		if d.Correct {
			recomputed++
		}
	}
	require.Equal(t, recomputed, res.Score)
	require.Equal(t, 3, res.Score)
}

// Review mode fidelity: source option order preserved verbatim, past answers
// replayed, and no finish log emitted.
func TestSession_ReviewModePreservesOrderAndSkipsLogs(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	items := quizItems(2)
	s, err := NewSession(KindQuiz, "t", items,
		Config{ReviewMode: true, PastAnswers: []string{"right", NoAnswer}},
		WithRecorder(rec), WithRand(testRand()))
	require.NoError(t, err)

	opts := s.Options()
	require.Equal(t, "right", opts[0].Text)
	require.Equal(t, "wrong1", opts[1].Text)
	require.Equal(t, "wrong2", opts[2].Text)

	require.Equal(t, Answered, s.ItemAnswerAt(0).State)
	require.True(t, s.ItemAnswerAt(0).Correct)
	require.Equal(t, TimedOut, s.ItemAnswerAt(1).State)

	// Selections are ignored in review mode.
	s.Answer(1)
	require.Equal(t, "right", s.ItemAnswerAt(0).Choice)

	// Walking past the end must not complete or log anything.
	s.Next()
	s.Next()
	s.Next()
	require.False(t, s.Completed())
	require.Empty(t, rec.types())
}

func TestSession_SimulationLocksOrderAndHints(t *testing.T) {
	t.Parallel()
	items := quizItems(2)
	items[0].Hint = "think hard"
	s, err := NewSession(KindQuiz, "t", items,
		Config{Simulation: true, TotalTime: time.Hour},
		WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	opts := s.Options()
	require.Equal(t, "right", opts[0].Text, "simulation must preserve source order")
	require.Empty(t, s.Hint(), "hints disabled in simulation")
}

// Timer cancellation: a countdown callback surviving past its cancellation
// must have no effect on the session.
func TestSession_StaleTimerCallbackIsNoOp(t *testing.T) {
	t.Parallel()
	s, err := NewSession(KindQuiz, "t", quizItems(2),
		Config{TimePerItem: time.Hour}, WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	s.mu.Lock()
	staleGen := s.timerGen
	s.mu.Unlock()

	answerBy(t, s, "right") // cancels the countdown
	s.onItemExpire(staleGen)

	ans := s.ItemAnswerAt(0)
	require.Equal(t, Answered, ans.State, "stale expiry must not overwrite the answer")
	require.Equal(t, 0, s.CurrentIndex(), "stale expiry must not advance")
}

func TestSession_NoTimerMutationAfterCompleted(t *testing.T) {
	t.Parallel()
	s, err := NewSession(KindQuiz, "t", quizItems(1),
		Config{TimePerItem: time.Hour}, WithRand(testRand()))
	require.NoError(t, err)

	s.mu.Lock()
	gen := s.timerGen
	s.mu.Unlock()
	s.End()
	require.True(t, s.Completed())
	before, _ := s.Result()

	s.onItemExpire(gen)
	s.onGlobalExpire()

	after, _ := s.Result()
	require.Equal(t, before, after)
}

func TestSession_ForcedEndAllowedWithUnansweredItems(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	s, err := NewSession(KindQuiz, "t", quizItems(3), Config{},
		WithRecorder(rec), WithRand(testRand()))
	require.NoError(t, err)

	answerBy(t, s, "right")
	s.End()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
	require.Equal(t, NoAnswer, res.Details[1].Chosen)
	require.Equal(t, NoAnswer, res.Details[2].Chosen)
	require.Equal(t, 1, rec.count(gateway.EventFinishQuiz))
}

func TestSession_PracticeMistakesLogsCorrections(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	s, err := NewSession(KindQuiz, "t", quizItems(2),
		Config{PracticeMistakes: true},
		WithRecorder(rec), WithRand(testRand()))
	require.NoError(t, err)
	defer s.Terminate()

	answerBy(t, s, "right")
	s.Next()
	answerBy(t, s, "wrong1")
	s.Next()

	require.Equal(t, 1, rec.count(gateway.EventLogCorrectedMistake))
	// Known mistakes are not re-logged in this mode.
	require.Equal(t, 0, rec.count(gateway.EventLogIncorrectAnswer))
}

func TestSession_LearningLogsEachLectureOnce(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	items := []Item{
		{ID: "l1", Prompt: "Intro"},
		{ID: "l2", Prompt: "Advanced"},
	}
	s, err := NewSession(KindLearning, "Lectures", items, Config{}, WithRecorder(rec))
	require.NoError(t, err)
	defer s.Terminate()

	s.Next()
	s.Prev()
	s.Next() // revisiting must not double-log

	require.Equal(t, 2, rec.count(gateway.EventViewLecture))
	require.Equal(t, 2, s.Score())
}

func TestSession_TheorySelfGrade(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	items := []Item{{ID: "t1", Prompt: "Topic 1"}, {ID: "t2", Prompt: "Topic 2"}}
	s, err := NewSession(KindTheory, "Theory", items, Config{}, WithRecorder(rec))
	require.NoError(t, err)

	s.SelfGrade(true)
	s.SelfGrade(false) // second grade on same item is a no-op
	s.Next()
	s.SelfGrade(false)
	s.Next()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
	require.Equal(t, "correct", res.Details[0].Chosen)
	require.Equal(t, "incorrect", res.Details[1].Chosen)
	require.Equal(t, 1, rec.count(gateway.EventSaveTheoryLog))
}

func TestSession_ReplacedSessionTerminates(t *testing.T) {
	t.Parallel()
	s, err := NewSession(KindQuiz, "t", quizItems(1), Config{TimePerItem: time.Hour}, WithRand(testRand()))
	require.NoError(t, err)

	s.Terminate()
	require.True(t, s.Completed())
	_, ok := s.Result()
	require.False(t, ok, "terminated session has no result and logs nothing")
}

func TestStartCountdown_ExpiresAndCancels(t *testing.T) {
	t.Parallel()
	expired := make(chan struct{})
	StartCountdown(20*time.Millisecond, nil, func() { close(expired) })
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("countdown never expired")
	}

	fired := make(chan struct{}, 1)
	token := StartCountdown(50*time.Millisecond, nil, func() { fired <- struct{}{} })
	token.Cancel()
	token.Cancel() // idempotent
	select {
	case <-fired:
		t.Fatal("cancelled countdown still expired")
	case <-time.After(150 * time.Millisecond):
	}
}
