package plans_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/plans"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appID = "app-1"

type failingPlans struct {
	*memory.Store
	err   error
	calls [][]domain.PlanInput
}

func (f *failingPlans) UpsertPlans(ctx context.Context, app string, in []domain.PlanInput) ([]domain.Plan, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.UpsertPlans(ctx, app, in)
}

type noticeLog []domain.Notice

func (n *noticeLog) Notify(notice domain.Notice) { *n = append(*n, notice) }

func newController(t *testing.T) (*plans.Controller, *failingPlans, *noticeLog) {
	t.Helper()
	ctx := context.Background()
	store := &failingPlans{Store: memory.NewStore()}
	for _, q := range []domain.Question{
		{ID: "r1", AppID: appID, WorkflowGroupID: "g1", IsRoot: true, Text: "Book a table", IsActive: true},
		{ID: "r2", AppID: appID, WorkflowGroupID: "g2", IsRoot: true, Text: "Opening hours", IsActive: true},
		{ID: "r3", AppID: appID, WorkflowGroupID: "g3", IsRoot: true, Text: "Catering", IsActive: false},
	} {
		_, err := store.CreateQuestion(ctx, q)
		require.NoError(t, err)
	}
	n := &noticeLog{}
	c := plans.New(appID, store, store, plans.WithNotifier(n))
	require.NoError(t, c.Load(ctx))
	return c, store, n
}

func orders(p domain.Plan) []int {
	var out []int
	for _, a := range p.Sorted() {
		out = append(out, a.Order)
	}
	return out
}

func groupIDs(p domain.Plan) []string {
	var out []string
	for _, a := range p.Sorted() {
		out = append(out, a.WorkflowGroupID)
	}
	return out
}

func TestAttachExisting_Gating(t *testing.T) {
	c, _, _ := newController(t)
	i := c.AddPlan("Premium", "")

	ok, err := c.AttachExisting(i, "g1")
	require.ErrorIs(t, err, domain.ErrPlanIncomplete)
	assert.False(t, ok)
	assert.Empty(t, c.Plans()[i].AttachedWorkflows)

	require.NoError(t, c.EditPlan(i, "Premium", "All flows"))
	ok, err = c.AttachExisting(i, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttachExisting_EmptyGroupRefused(t *testing.T) {
	c, _, _ := newController(t)
	i := c.AddPlan("Basic", "Entry plan")

	ok, err := c.AttachExisting(i, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, domain.IsValidation(err))
	assert.False(t, ok)
	assert.Empty(t, c.Plans()[i].AttachedWorkflows)
}

func TestAttachExisting_DuplicateIsNoOp(t *testing.T) {
	c, _, n := newController(t)
	i := c.AddPlan("Basic", "Entry plan")
	_, err := c.AttachExisting(i, "g1")
	require.NoError(t, err)
	_, err = c.AttachExisting(i, "g2")
	require.NoError(t, err)
	before := c.Plans()[i]

	ok, err := c.AttachExisting(i, "g1")
	require.NoError(t, err, "a duplicate is not an error")
	assert.False(t, ok)
	assert.Equal(t, before, c.Plans()[i], "list unchanged")
	require.Len(t, *n, 1)
	assert.Equal(t, domain.NoticeInfo, (*n)[0].Level)
}

func TestAttachments_StayContiguous(t *testing.T) {
	c, _, _ := newController(t)
	i := c.AddPlan("Basic", "Entry plan")
	for _, g := range []string{"g1", "g2", "g3"} {
		_, err := c.AttachExisting(i, g)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 1, 2}, orders(c.Plans()[i]))

	require.NoError(t, c.ReorderAttachments(i, 2, 0))
	assert.Equal(t, []string{"g3", "g1", "g2"}, groupIDs(c.Plans()[i]))
	assert.Equal(t, []int{0, 1, 2}, orders(c.Plans()[i]))

	require.NoError(t, c.RemoveAttachment(i, "g1"))
	assert.Equal(t, []string{"g3", "g2"}, groupIDs(c.Plans()[i]))
	assert.Equal(t, []int{0, 1}, orders(c.Plans()[i]))

	err := c.RemoveAttachment(i, "g1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReorderAttachments_RepairsStaleOrders(t *testing.T) {
	c, store, _ := newController(t)
	_, err := store.Store.UpsertPlans(context.Background(), appID, []domain.PlanInput{{
		Question: "Legacy",
		Answer:   "Has duplicate orders",
		AttachedWorkflows: []domain.WorkflowOrder{
			{WorkflowID: "g1", Order: 4},
			{WorkflowID: "g2", Order: 4},
			{WorkflowID: "g3", Order: 9},
		},
	}})
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.ReorderAttachments(0, 0, 1))
	assert.Equal(t, []string{"g2", "g1", "g3"}, groupIDs(c.Plans()[0]))
	assert.Equal(t, []int{0, 1, 2}, orders(c.Plans()[0]))
}

func TestViews_UnresolvedKept(t *testing.T) {
	c, store, _ := newController(t)
	_, err := store.Store.UpsertPlans(context.Background(), appID, []domain.PlanInput{{
		Question: "Basic",
		Answer:   "Entry plan",
		AttachedWorkflows: []domain.WorkflowOrder{
			{WorkflowID: "g1", Order: 0},
			{WorkflowID: "deleted-flow", Order: 1},
			{WorkflowID: "g3", Order: 2},
		},
	}})
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))

	views, err := c.Views(0)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.True(t, views[0].Resolved)
	assert.Equal(t, "Book a table", views[0].Title)
	assert.False(t, views[1].Resolved)
	assert.Equal(t, plans.UnresolvedTitle, views[1].Title)
	assert.Equal(t, "deleted-flow", views[1].WorkflowGroupID)
	assert.True(t, views[2].Resolved)
	assert.False(t, views[2].Active)
}

func TestSave_DropsNullReferences(t *testing.T) {
	c, store, _ := newController(t)
	_, err := store.Store.UpsertPlans(context.Background(), appID, []domain.PlanInput{{
		Question:          "Basic",
		Answer:            "Entry plan",
		AttachedWorkflows: []domain.WorkflowOrder{{WorkflowID: "", Order: 0}, {WorkflowID: "g2", Order: 1}},
	}})
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))

	views, err := c.Views(0)
	require.NoError(t, err)
	require.Len(t, views, 2, "null reference displayed until removed")
	assert.False(t, views[0].Resolved)

	i := c.AddPlan("Premium", "Everything")
	_, err = c.AttachExisting(i, "g1")
	require.NoError(t, err)

	require.NoError(t, c.Save(context.Background()))
	require.Len(t, store.calls, 1)
	assert.Equal(t, []domain.WorkflowOrder{{WorkflowID: "g2", Order: 1}}, store.calls[0][0].AttachedWorkflows)
	assert.Equal(t, "Premium", store.calls[0][1].Question)
	assert.Equal(t, "Everything", store.calls[0][1].Answer)
	assert.NotEmpty(t, c.Plans()[i].ID, "new plans receive their id")

	require.NoError(t, c.RemoveAttachmentAt(0, 0))
	assert.Equal(t, []string{"g2"}, groupIDs(c.Plans()[0]))
	assert.Equal(t, []int{0}, orders(c.Plans()[0]))
}

func TestSave_FailureKeepsLocalState(t *testing.T) {
	c, store, n := newController(t)
	store.err = errors.New("422 unprocessable entity")
	i := c.AddPlan("Basic", "Entry plan")
	_, err := c.AttachExisting(i, "g1")
	require.NoError(t, err)

	err = c.Save(context.Background())
	require.Error(t, err)
	assert.Len(t, c.Plans(), 1)
	assert.Equal(t, []string{"g1"}, groupIDs(c.Plans()[i]))
	require.Len(t, *n, 1)
	assert.Equal(t, "422 unprocessable entity", (*n)[0].Message)
}

func TestIndexOutOfRange(t *testing.T) {
	c, _, _ := newController(t)
	_, err := c.AttachExisting(3, "g1")
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
	assert.ErrorIs(t, c.ReorderAttachments(0, 0, 1), domain.ErrIndexOutOfRange)
	_, err = c.Views(-1)
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
}

var _ ports.Notifier = (*noticeLog)(nil)
