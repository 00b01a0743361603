package studykit

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/planner"
)

// Study plan operations. Plan state lives in memory and is pushed to the
// remote service whole-plan at a time through the outbox; reads replace the
// in-memory set.

// LoadStudyPlans fetches the user's plans from the service and installs
// them locally.
func (c *Client) LoadStudyPlans(ctx context.Context) ([]planner.Plan, error) {
	u, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("userId", u.ID)
	raw, err := c.gw.Request(ctx, gateway.KindAllUserPlans, params)
	if err != nil {
		return nil, err
	}
	var plans []planner.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, &RemoteError{Op: gateway.KindAllUserPlans, Message: "malformed plans: " + err.Error(), Category: gateway.Recoverable}
	}

	c.planMu.Lock()
	defer c.planMu.Unlock()
	c.plans.Load(plans)
	return c.plans.Plans(), nil
}

// CreateStudyPlan generates a plan over the date range and chapter
// selection and pushes it to the service.
func (c *Client) CreateStudyPlan(ctx context.Context, name string, start, end time.Time, chapters []string) (planner.Plan, error) {
	u, err := c.currentUser()
	if err != nil {
		return planner.Plan{}, err
	}
	if name == "" {
		return planner.Plan{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	plan := planner.Generate(u.ID, name, start, end, chapters)

	c.planMu.Lock()
	defer c.planMu.Unlock()
	if err := c.plans.Create(ctx, plan); err != nil {
		return planner.Plan{}, err
	}
	return plan, nil
}

// StudyPlans returns the locally held plans.
func (c *Client) StudyPlans() []planner.Plan {
	c.planMu.Lock()
	defer c.planMu.Unlock()
	return c.plans.Plans()
}

// ActiveStudyPlan returns the active plan, if any.
func (c *Client) ActiveStudyPlan() (planner.Plan, bool) {
	c.planMu.Lock()
	defer c.planMu.Unlock()
	return c.plans.ActivePlan()
}

// ToggleStudyTask flips one task's completion flag and syncs the plan.
func (c *Client) ToggleStudyTask(ctx context.Context, planID string, day, task int) error {
	c.planMu.Lock()
	defer c.planMu.Unlock()
	return c.plans.ToggleTask(ctx, planID, day, task)
}

// ActivateStudyPlan makes one plan active; every other plan is deactivated.
func (c *Client) ActivateStudyPlan(ctx context.Context, planID string) error {
	c.planMu.Lock()
	defer c.planMu.Unlock()
	return c.plans.Activate(ctx, planID)
}
