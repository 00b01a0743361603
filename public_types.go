package studykit

import (
	"github.com/studykit/studykit/internal/activity"
	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/planner"
	"github.com/studykit/studykit/internal/session"
)

// Public type aliases so consumers can import only this package.
type (
	// Content records
	Snapshot      = content.Snapshot
	Question      = content.Question
	AnswerOption  = content.AnswerOption
	Lecture       = content.Lecture
	OSCECase      = content.OSCECase
	OSCEQuestion  = content.OSCEQuestion
	Book          = content.Book
	Announcement  = content.Announcement
	RowDiagnostic = content.RowDiagnostic

	// Session state
	User       = session.User
	Annotation = session.Annotation

	// Activity engines
	ActivityKind    = activity.Kind
	QuizSession     = activity.Session
	OSCESession     = activity.OSCESession
	MatchingSession = activity.MatchingSession
	Result          = activity.Result
	ItemDetail      = activity.ItemDetail

	// Study plans
	Plan     = planner.Plan
	DayEntry = planner.DayEntry
	Task     = planner.Task
)

// Activity kinds, re-exported.
const (
	KindQuiz     = activity.KindQuiz
	KindLearning = activity.KindLearning
	KindTheory   = activity.KindTheory
	KindOSCE     = activity.KindOSCE
	KindMatching = activity.KindMatching
)

// NoAnswer marks an item that timed out or was never answered.
const NoAnswer = activity.NoAnswer
