package activity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studykit/studykit/internal/gateway"
)

func matchPairs(n int) []Pair {
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		pairs = append(pairs, Pair{ID: id, Premise: "premise " + id, Answer: "answer " + id})
	}
	return pairs
}

func TestNewMatchingSession_TooFewPairsIsValidationError(t *testing.T) {
	t.Parallel()
	_, err := NewMatchingSession("t", matchPairs(MatchSetSize-1), Config{}, Deps{})
	require.ErrorIs(t, err, ErrNoItems)
}

func TestNewMatchingSession_DropsTrailingPartialSet(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(7), Config{}, Deps{Rng: testRand()})
	require.NoError(t, err)
	require.Equal(t, 1, s.Sets())
}

// Per-slot credit: matching 3 of 5 premises correctly scores 3, regardless of
// the other slots.
func TestMatchingSession_ScoresPerSlot(t *testing.T) {
	t.Parallel()
	rec := &recSink{}
	s, err := NewMatchingSession("Anatomy match", matchPairs(5), Config{},
		Deps{Rec: rec, Rng: testRand()})
	require.NoError(t, err)

	s.Place("p0", "p0") // correct
	s.Place("p1", "p1") // correct
	s.Place("p2", "p3") // wrong
	s.Place("p3", "p2") // wrong
	s.Place("p4", "p4") // correct
	s.SubmitSet()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 3, res.Score)
	require.Equal(t, 5, res.Total)
	require.Equal(t, KindMatching, res.Kind)
	require.Equal(t, 1, rec.count(gateway.EventFinishMatchingQuiz))
}

func TestMatchingSession_RePlaceUntilSubmitted(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(5), Config{}, Deps{Rng: testRand()})
	require.NoError(t, err)
	defer s.Terminate()

	s.Place("p0", "p1")
	s.Place("p0", "p0") // re-placing overwrites the earlier drop
	s.SubmitSet()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
}

func TestMatchingSession_SubmitLocksSet(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(10), Config{}, Deps{Rng: testRand()})
	require.NoError(t, err)
	defer s.Terminate()
	require.Equal(t, 2, s.Sets())

	s.Place("p0", "p0")
	s.SubmitSet()
	require.Equal(t, 1, s.CurrentSet())
	require.Equal(t, 1, s.Score())

	// Second set: placements against the first set's ids are rejected.
	s.Place("p0", "p0")
	s.Place("p5", "p5")
	s.SubmitSet()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 2, res.Score)
	require.Equal(t, 10, res.Total)
}

func TestMatchingSession_EndScoresUnsubmittedSets(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(5), Config{}, Deps{Rng: testRand()})
	require.NoError(t, err)

	s.Place("p0", "p0")
	s.Place("p1", "p2")
	s.End()

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
	require.Equal(t, NoAnswer, res.Details[2].Chosen)
}

// A set countdown expiring auto-submits the set as it stands.
func TestMatchingSession_SetTimeoutAutoSubmits(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(5),
		Config{TimePerItem: time.Hour}, Deps{Rng: testRand()})
	require.NoError(t, err)

	s.Place("p0", "p0")
	s.mu.Lock()
	gen := s.timerGen
	s.mu.Unlock()
	s.expireSet(gen)

	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, 1, res.Score)
}

func TestMatchingSession_StaleSetTimeoutIsNoOp(t *testing.T) {
	t.Parallel()
	s, err := NewMatchingSession("t", matchPairs(10),
		Config{TimePerItem: time.Hour}, Deps{Rng: testRand()})
	require.NoError(t, err)
	defer s.Terminate()

	s.mu.Lock()
	stale := s.timerGen
	s.mu.Unlock()
	s.SubmitSet() // advances to set 2 and re-arms the countdown
	s.expireSet(stale)

	require.Equal(t, 1, s.CurrentSet())
	require.False(t, s.Completed())
}
