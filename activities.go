package studykit

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/studykit/studykit/internal/activity"
	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/gateway"
)

// QuizOptions selects and paces the questions of a quiz run.
type QuizOptions struct {
	Title            string
	Chapters         []string // empty selects all chapters
	Count            int      // 0 takes every selected question
	TimePerItem      time.Duration
	TotalTime        time.Duration
	Simulation       bool // exam simulation: fixed option order, no hints
	PracticeMistakes bool // correcting a known mistake logs a correction
}

// StartQuiz launches a quiz over the selected questions. The new run
// replaces (and terminates) any quiz already in progress. Asking for more
// questions than the selection holds is a validation failure.
func (c *Client) StartQuiz(opts QuizOptions) (*activity.Session, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	pool := filterQuestions(snap.Questions, opts.Chapters)
	if len(pool) == 0 {
		return nil, &ValidationError{Field: "chapters", Reason: "no questions in selection"}
	}
	count := opts.Count
	if count == 0 {
		count = len(pool)
	}
	if count > len(pool) {
		return nil, &ValidationError{Field: "count", Reason: "more questions requested than available"}
	}

	rng := c.newRand()
	items := make([]activity.Item, 0, count)
	for _, i := range rng.Perm(len(pool))[:count] {
		items = append(items, questionItem(pool[i]))
	}

	s, err := activity.NewSession(activity.KindQuiz, opts.Title, items,
		activity.Config{
			TimePerItem:      opts.TimePerItem,
			TotalTime:        opts.TotalTime,
			Simulation:       opts.Simulation,
			PracticeMistakes: opts.PracticeMistakes,
		},
		activity.WithRecorder(c.recorder()),
		activity.WithLogger(c.log),
		activity.WithRand(rng),
		activity.WithOnComplete(c.onActivityComplete),
	)
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	sessionsStartedTotal.WithLabelValues(string(activity.KindQuiz)).Inc()
	return s, nil
}

// StartLearning launches a lecture walkthrough over the selected chapters.
// Each first lecture view is logged remotely; there is no finish event.
func (c *Client) StartLearning(title string, chapters []string) (*activity.Session, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var items []activity.Item
	for _, l := range snap.Lectures {
		if !chapterSelected(l.Chapter, chapters) {
			continue
		}
		items = append(items, activity.Item{ID: l.ID, Chapter: l.Chapter, Prompt: l.Title})
	}

	s, err := activity.NewSession(activity.KindLearning, title, items, activity.Config{},
		activity.WithRecorder(c.recorder()),
		activity.WithLogger(c.log),
		activity.WithOnComplete(c.onActivityComplete),
	)
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	sessionsStartedTotal.WithLabelValues(string(activity.KindLearning)).Inc()
	return s, nil
}

// StartTheory launches a self-graded theory run over the selected chapters'
// lecture topics, optionally timed.
func (c *Client) StartTheory(title string, chapters []string, timePerItem, totalTime time.Duration) (*activity.Session, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var items []activity.Item
	for _, l := range snap.Lectures {
		if !chapterSelected(l.Chapter, chapters) {
			continue
		}
		items = append(items, activity.Item{ID: l.ID, Chapter: l.Chapter, Prompt: l.Title})
	}

	s, err := activity.NewSession(activity.KindTheory, title, items,
		activity.Config{TimePerItem: timePerItem, TotalTime: totalTime},
		activity.WithRecorder(c.recorder()),
		activity.WithLogger(c.log),
		activity.WithOnComplete(c.onActivityComplete),
	)
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	sessionsStartedTotal.WithLabelValues(string(activity.KindTheory)).Inc()
	return s, nil
}

// StartOSCE launches a case-based OSCE run over every case that has
// sub-questions.
func (c *Client) StartOSCE(title string, timePerItem, totalTime time.Duration) (*activity.OSCESession, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	s, err := activity.NewOSCESession(title, activity.BuildCaseItems(snap),
		activity.Config{TimePerItem: timePerItem, TotalTime: totalTime},
		activity.Deps{
			Rec:        c.recorder(),
			Log:        c.log,
			Rng:        c.newRand(),
			OnComplete: c.onActivityComplete,
		})
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	sessionsStartedTotal.WithLabelValues(string(activity.KindOSCE)).Inc()
	return s, nil
}

// StartMatching launches a premise/answer matching run. Pairs are derived
// from single-answer questions of the selected chapters: the prompt is the
// premise and the correct option text is the answer.
func (c *Client) StartMatching(title string, chapters []string, timePerSet time.Duration) (*activity.MatchingSession, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var pairs []activity.Pair
	for _, q := range filterQuestions(snap.Questions, chapters) {
		if q.Type != "single" {
			continue
		}
		for _, opt := range q.Options {
			if opt.IsCorrect {
				pairs = append(pairs, activity.Pair{ID: q.ID, Premise: q.Prompt, Answer: opt.Text})
				break
			}
		}
	}
	rng := c.newRand()
	rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

	s, err := activity.NewMatchingSession(title, pairs,
		activity.Config{TimePerItem: timePerSet},
		activity.Deps{
			Rec:        c.recorder(),
			Log:        c.log,
			Rng:        rng,
			OnComplete: c.onActivityComplete,
		})
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	sessionsStartedTotal.WithLabelValues(string(activity.KindMatching)).Inc()
	return s, nil
}

// reviewResponse is the service reply to a reviewQuiz read.
type reviewResponse struct {
	Title       string   `json:"title"`
	QuestionIDs []string `json:"questionIds"`
	Answers     []string `json:"answers"`
}

// ReviewQuiz replays a past quiz from the service log: source option order,
// past answers restored, no timers, and nothing logged remotely.
func (c *Client) ReviewQuiz(ctx context.Context, quizID string) (*activity.Session, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	u, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("quizId", quizID)
	params.Set("userId", u.ID)
	raw, err := c.gw.Request(ctx, gateway.KindReviewQuiz, params)
	if err != nil {
		return nil, err
	}
	var resp reviewResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &RemoteError{Op: gateway.KindReviewQuiz, Message: "malformed review: " + err.Error(), Category: gateway.Recoverable}
	}

	byID := make(map[string]content.Question, len(snap.Questions))
	for _, q := range snap.Questions {
		byID[q.ID] = q
	}
	var items []activity.Item
	var answers []string
	for i, id := range resp.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			continue // question dropped from the current snapshot
		}
		items = append(items, questionItem(q))
		if i < len(resp.Answers) {
			answers = append(answers, resp.Answers[i])
		} else {
			answers = append(answers, activity.NoAnswer)
		}
	}

	s, err := activity.NewSession(activity.KindQuiz, resp.Title, items,
		activity.Config{ReviewMode: true, PastAnswers: answers},
		activity.WithLogger(c.log),
	)
	if err != nil {
		return nil, err
	}
	c.store.SetActive(s)
	return s, nil
}

// ActiveSession returns the running activity of the given kind, if any.
func (c *Client) ActiveSession(kind activity.Kind) (activity.Activity, bool) {
	return c.store.Active(kind)
}

// LastResult returns the most recently completed run.
func (c *Client) LastResult() (activity.Result, bool) {
	return c.store.LastResult()
}

// UserScore returns the score accumulated across completed runs this
// session. It is bumped optimistically on completion, before the finish
// event reaches the service.
func (c *Client) UserScore() int {
	return c.store.Score()
}

// onActivityComplete records the finished run for review, bumps the running
// score, and counts the completion.
func (c *Client) onActivityComplete(res activity.Result) {
	c.store.SetLastResult(res)
	c.store.AddScore(res.Score)
	sessionsCompletedTotal.WithLabelValues(string(res.Kind)).Inc()
}

// recorder routes engine events through the outbox, keyed by event type so
// logs of one kind stay ordered.
func (c *Client) recorder() activity.Recorder {
	return recorderFunc(func(eventType string, payload map[string]any) {
		if u, ok := c.store.User(); ok {
			merged := make(map[string]any, len(payload)+1)
			for k, v := range payload {
				merged[k] = v
			}
			merged["userId"] = u.ID
			payload = merged
		}
		c.submit("activity/"+eventType, eventType, payload)
	})
}

type recorderFunc func(eventType string, payload map[string]any)

func (f recorderFunc) Record(eventType string, payload map[string]any) { f(eventType, payload) }

func questionItem(q content.Question) activity.Item {
	return activity.Item{
		ID:       q.ID,
		Chapter:  q.Chapter,
		Prompt:   q.Prompt,
		ImageURL: q.ImageURL,
		Hint:     q.Hint,
		Options:  q.Options,
	}
}

func filterQuestions(qs []content.Question, chapters []string) []content.Question {
	if len(chapters) == 0 {
		return qs
	}
	var out []content.Question
	for _, q := range qs {
		if chapterSelected(q.Chapter, chapters) {
			out = append(out, q)
		}
	}
	return out
}

func chapterSelected(chapter string, chapters []string) bool {
	if len(chapters) == 0 {
		return true
	}
	for _, ch := range chapters {
		if ch == chapter {
			return true
		}
	}
	return false
}
