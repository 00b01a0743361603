package planner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/outbox"
)

type planSink struct {
	mu   sync.Mutex
	sent []string
}

func (p *planSink) Send(_ context.Context, eventType string, _ map[string]any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, eventType)
	return nil, nil
}

func (p *planSink) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func newManager(t *testing.T) (*Manager, *planSink, *outbox.Outbox) {
	t.Helper()
	remote := &planSink{}
	box := outbox.New(outbox.Config{Shards: 1}, zerolog.Nop())
	t.Cleanup(box.Stop)
	return NewManager(remote, box, zerolog.Nop()), remote, box
}

func TestGenerate_RoundRobinAcrossDays(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2) // three days
	plan := Generate("u1", "Finals prep", start, end,
		[]string{"Cardiology", "Neurology", "Dermatology", "Pediatrics"})

	require.Len(t, plan.Days, 3)
	require.Equal(t, "2026-03-02", plan.Days[0].Date)
	require.Equal(t, "2026-03-04", plan.Days[2].Date)

	// 4 chapters round-robin over 3 days: day 0 gets two, others one.
	require.Len(t, plan.Days[0].Tasks, 4)
	require.Len(t, plan.Days[1].Tasks, 2)
	require.Len(t, plan.Days[2].Tasks, 2)
	require.Equal(t, TaskLecture, plan.Days[0].Tasks[0].Type)
	require.Equal(t, TaskQuiz, plan.Days[0].Tasks[1].Type)
	require.Equal(t, "Study Cardiology", plan.Days[0].Tasks[0].Name)
	require.Equal(t, "Quiz: Pediatrics", plan.Days[0].Tasks[3].Name)
}

func TestGenerate_InvertedRangeYieldsOneDay(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan := Generate("u1", "p", start, start.AddDate(0, 0, -5), []string{"A"})
	require.Len(t, plan.Days, 1)
}

func TestManager_ToggleTaskSyncsWholePlan(t *testing.T) {
	m, remote, box := newManager(t)
	ctx := context.Background()

	plan := Generate("u1", "p", time.Now(), time.Now(), []string{"A"})
	require.NoError(t, m.Create(ctx, plan))

	require.NoError(t, m.ToggleTask(ctx, plan.ID, 0, 0))
	got, ok := m.Plan(plan.ID)
	require.True(t, ok)
	require.True(t, got.Days[0].Tasks[0].Completed)

	require.NoError(t, m.ToggleTask(ctx, plan.ID, 0, 0))
	got, _ = m.Plan(plan.ID)
	require.False(t, got.Days[0].Tasks[0].Completed, "toggle flips back")

	require.Error(t, m.ToggleTask(ctx, plan.ID, 0, 99))
	require.Error(t, m.ToggleTask(ctx, "nope", 0, 0))

	require.NoError(t, box.Flush(ctx))
	require.Equal(t, []string{
		gateway.EventCreateStudyPlan,
		gateway.EventUpdateStudyPlan,
		gateway.EventUpdateStudyPlan,
	}, remote.events())
}

// Activating a plan deactivates every other plan.
func TestManager_SingleActivePlan(t *testing.T) {
	m, remote, box := newManager(t)
	ctx := context.Background()

	a := Generate("u1", "a", time.Now(), time.Now(), nil)
	b := Generate("u1", "b", time.Now(), time.Now(), nil)
	require.NoError(t, m.Create(ctx, a))
	require.NoError(t, m.Create(ctx, b))

	require.NoError(t, m.Activate(ctx, a.ID))
	require.NoError(t, m.Activate(ctx, b.ID))

	active, ok := m.ActivePlan()
	require.True(t, ok)
	require.Equal(t, b.ID, active.ID)
	got, _ := m.Plan(a.ID)
	require.False(t, got.Active)

	require.NoError(t, box.Flush(ctx))
	require.Contains(t, remote.events(), gateway.EventActivateStudyPlan)
}

func TestManager_LoadReplacesPlans(t *testing.T) {
	m, _, _ := newManager(t)
	plan := Generate("u1", "old", time.Now(), time.Now(), nil)
	require.NoError(t, m.Create(context.Background(), plan))

	m.Load([]Plan{Generate("u1", "fresh", time.Now(), time.Now(), nil)})
	require.Len(t, m.Plans(), 1)
	_, ok := m.Plan(plan.ID)
	require.False(t, ok)
}
