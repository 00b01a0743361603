// Package planner builds and maintains study plans: per-day task lists
// generated from a date range and a chapter selection. Plan mutations are
// applied locally first and pushed to the remote service through the
// outbox, whole plan at a time.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/outbox"
)

// TaskType classifies a planned task.
type TaskType string

const (
	TaskLecture TaskType = "lecture"
	TaskQuiz    TaskType = "quiz"
	TaskCustom  TaskType = "custom"
)

// Task is one checkable item on a plan day.
type Task struct {
	Type      TaskType `json:"type"`
	Name      string   `json:"name"`
	Completed bool     `json:"completed"`
}

// DayEntry is one calendar day of a plan.
type DayEntry struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Tasks []Task `json:"tasks"`
}

// Plan is a named study plan. At most one plan is active at a time.
type Plan struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	Days      []DayEntry `json:"days"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Generate lays the given chapters out across the date range, one lecture
// task plus one quiz task per chapter, chapters assigned to days round-robin.
// The range is inclusive; end before start yields a single-day plan.
func Generate(userID, name string, start, end time.Time, chapters []string) Plan {
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	plan := Plan{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Days:      make([]DayEntry, days),
		CreatedAt: time.Now(),
	}
	for i := range plan.Days {
		plan.Days[i].Date = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	for i, ch := range chapters {
		d := i % days
		plan.Days[d].Tasks = append(plan.Days[d].Tasks,
			Task{Type: TaskLecture, Name: "Study " + ch},
			Task{Type: TaskQuiz, Name: "Quiz: " + ch},
		)
	}
	return plan
}

// Sender sends one write event; satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, eventType string, payload map[string]any) (json.RawMessage, error)
}

// Dispatcher enqueues asynchronous writes; satisfied by outbox.Outbox.
type Dispatcher interface {
	Submit(ctx context.Context, key, eventType string, job outbox.Job) (string, error)
}

// Manager holds the user's plans and keeps the remote copy in sync. It is
// not safe for concurrent use; the owning client serializes access.
type Manager struct {
	remote Sender
	box    Dispatcher
	log    zerolog.Logger

	plans map[string]*Plan
}

// NewManager returns an empty plan manager.
func NewManager(remote Sender, box Dispatcher, log zerolog.Logger) *Manager {
	return &Manager{
		remote: remote,
		box:    box,
		log:    log,
		plans:  make(map[string]*Plan),
	}
}

// Load replaces the held plans, typically after a getAllUserPlans read.
func (m *Manager) Load(plans []Plan) {
	m.plans = make(map[string]*Plan, len(plans))
	for i := range plans {
		p := plans[i]
		m.plans[p.ID] = &p
	}
}

// Plans returns the held plans.
func (m *Manager) Plans() []Plan {
	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, *p)
	}
	return out
}

// Plan returns one plan by id.
func (m *Manager) Plan(id string) (Plan, bool) {
	p, ok := m.plans[id]
	if !ok {
		return Plan{}, false
	}
	return *p, true
}

// ActivePlan returns the active plan, if any.
func (m *Manager) ActivePlan() (Plan, bool) {
	for _, p := range m.plans {
		if p.Active {
			return *p, true
		}
	}
	return Plan{}, false
}

// Create adds a plan and pushes it to the remote service.
func (m *Manager) Create(ctx context.Context, plan Plan) error {
	cp := plan
	m.plans[cp.ID] = &cp
	return m.push(ctx, gateway.EventCreateStudyPlan, cp)
}

// ToggleTask flips the completion flag of one task and syncs the whole
// plan; the service stores plans as opaque documents.
func (m *Manager) ToggleTask(ctx context.Context, planID string, day, task int) error {
	p, ok := m.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: not found", planID)
	}
	if day < 0 || day >= len(p.Days) || task < 0 || task >= len(p.Days[day].Tasks) {
		return fmt.Errorf("plan %s: no task at day %d index %d", planID, day, task)
	}
	p.Days[day].Tasks[task].Completed = !p.Days[day].Tasks[task].Completed
	return m.push(ctx, gateway.EventUpdateStudyPlan, *p)
}

// Activate marks one plan active and deactivates every other plan.
func (m *Manager) Activate(ctx context.Context, planID string) error {
	target, ok := m.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: not found", planID)
	}
	for _, p := range m.plans {
		p.Active = p == target
	}
	return m.push(ctx, gateway.EventActivateStudyPlan, *target)
}

// push enqueues one whole-plan write keyed by plan id, so updates to the
// same plan stay ordered.
func (m *Manager) push(ctx context.Context, event string, plan Plan) error {
	payload := map[string]any{
		"userId": plan.UserID,
		"plan":   plan,
	}
	_, err := m.box.Submit(ctx, "plan/"+plan.ID, event,
		outbox.JobFunc(func(ctx context.Context) error {
			_, err := m.remote.Send(ctx, event, payload)
			return err
		}))
	if err != nil {
		m.log.Warn().Err(err).Str("plan", plan.ID).Msg("plan write not enqueued")
	}
	return err
}
