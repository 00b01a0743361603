// Package activity implements the timed, resumable study-session engines:
// quiz, learning, and theory runs share one option-based state-machine
// driver; OSCE and matching specialize it with their own payloads. All
// engines share the countdown abstraction, the result contract, and the
// fire-and-forget event recorder.
package activity

import (
	"errors"
	"time"
)

// Kind tags the session variants.
type Kind string

const (
	KindQuiz     Kind = "quiz"
	KindOSCE     Kind = "osce"
	KindMatching Kind = "matching"
	KindLearning Kind = "learning"
	KindTheory   Kind = "theory"
)

// Phase is the coarse state of a session. A session is created directly in
// PhaseInProgress; launch-time validation plays the Configuring role.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseCompleted
)

// ItemState is the per-item sub-state.
type ItemState int

const (
	Unanswered ItemState = iota
	Answered
	TimedOut
)

// NoAnswer is the sentinel recorded for an item whose countdown expired.
const NoAnswer = "No Answer"

// ErrNoItems is the launch precondition failure. It surfaces as an inline
// validation message, never as a crash.
var ErrNoItems = errors.New("no items selected for this session")

// Config carries the recognized launch options.
type Config struct {
	// TimePerItem arms a countdown per item; zero disables it.
	TimePerItem time.Duration
	// TotalTime arms a single simulation-style countdown for the whole run.
	TotalTime time.Duration
	// ReviewMode disables scoring, timers, and logging, and replays
	// PastAnswers in the original option order.
	ReviewMode bool
	// PracticeMistakes suppresses re-logging known mistakes and logs
	// corrections instead.
	PracticeMistakes bool
	// Simulation locks option order, disables hints, and uses TotalTime.
	Simulation bool
	// PastAnswers holds the previously chosen answers, aligned with items,
	// for review mode.
	PastAnswers []string
}

// Activity is the common surface the session store needs from any engine.
type Activity interface {
	ActivityKind() Kind
	Completed() bool
	// Terminate tears the session down without emitting a finish event:
	// timers are cancelled and the session accepts no further input. Used
	// when a new session of the same kind replaces this one or the user
	// navigates away.
	Terminate()
}
