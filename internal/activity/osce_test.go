package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/gateway"
)

func osceSnapshot() *content.Snapshot {
	return &content.Snapshot{
		OSCECases: []content.OSCECase{
			{ID: "c1", Title: "Chest pain"},
			{ID: "c2", Title: "Orphan case"}, // no questions → filtered
		},
		OSCEQuestions: []content.OSCEQuestion{
			{ID: "q1", CaseID: "c1", Kind: content.OSCEKindMCQ, Prompt: "First step?",
				Options: []content.AnswerOption{
					{Text: "ECG", IsCorrect: true},
					{Text: "Discharge"},
				}},
			{ID: "q2", CaseID: "c1", Kind: content.OSCEKindEssay, Prompt: "Interpret the trace.",
				ModelAnswer: "ST elevation in II, III, aVF"},
		},
	}
}

func TestBuildCaseItems_FiltersOrphanCases(t *testing.T) {
	t.Parallel()
	cases := BuildCaseItems(osceSnapshot())
	require.Len(t, cases, 1)
	require.Equal(t, "c1", cases[0].Case.ID)
	require.Len(t, cases[0].Questions, 2)
}

func TestOSCESession_MCQAndEssayFlow(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	cases := BuildCaseItems(osceSnapshot())
	s, err := NewOSCESession("OSCE run", cases, Config{}, Deps{Rec: rec, Rng: testRand()})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	// MCQ sub-question scores automatically.
	require.Equal(t, "c1", s.CurrentCase().ID)
	var right int
	for i, opt := range s.Options() {
		if opt.IsCorrect {
			right = i
		}
	}
	s.AnswerMCQ(right)
	s.AnswerMCQ(right + 1) // second selection is a no-op
	require.Equal(t, 1, s.Score())
	s.Next()

	// Essay: self-grading only counts after the model answer is revealed.
	s.SelfGrade(true)
	require.Equal(t, 1, s.Score(), "grade before reveal must be ignored")
	model, ok := s.Reveal()
	require.True(t, ok)
	require.Equal(t, "ST elevation in II, III, aVF", model)
	s.SelfGrade(true)
	require.Equal(t, 2, s.Score())

	s.Next() // past the last sub-question → completed
	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 2, res.Score)
	require.Equal(t, 2, res.Total)
	require.Equal(t, KindOSCE, res.Kind)
	require.Equal(t, 1, rec.count(gateway.EventFinishOSCEQuiz))
}

func TestOSCESession_NoCasesIsValidationError(t *testing.T) {
	t.Parallel()
	_, err := NewOSCESession("t", nil, Config{}, Deps{})
	require.ErrorIs(t, err, ErrNoItems)
}

func TestOSCESession_TimeoutMarksNoAnswer(t *testing.T) {
	t.Parallel()
	cases := BuildCaseItems(osceSnapshot())
	s, err := NewOSCESession("t", cases, Config{TimePerItem: time.Hour}, Deps{Rng: testRand()})
	require.NoError(t, err)
	defer s.Terminate()

	s.mu.Lock()
	gen := s.timerGen
	s.mu.Unlock()
	s.expireItem(gen)

	require.Equal(t, 1, currentSlot(s))
}

// currentSlot reads the flattened sub-question index under the lock.
func currentSlot(s *OSCESession) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

func TestOSCESession_StaleExpiryNoOp(t *testing.T) {
	t.Parallel()
	cases := BuildCaseItems(osceSnapshot())
	s, err := NewOSCESession("t", cases, Config{TimePerItem: time.Hour}, Deps{Rng: testRand()})
	require.NoError(t, err)
	defer s.Terminate()

	s.mu.Lock()
	stale := s.timerGen
	s.mu.Unlock()
	s.AnswerMCQ(0) // cancels the countdown
	s.expireItem(stale)

	require.Equal(t, 0, currentSlot(s), "stale expiry must not advance")
}
