package authoring_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/authoring"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appID = "app-1"

var errBackend = errors.New("500 internal server error")

// flakyStore fails selected calls of an in-memory store.
type flakyStore struct {
	*memory.Store

	mu           sync.Mutex
	updates      int
	failUpdateAt int
	failUpdateID string
	createErr    error
	uploadErr    error
}

func (s *flakyStore) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if s.createErr != nil {
		return domain.Question{}, s.createErr
	}
	return s.Store.CreateQuestion(ctx, q)
}

func (s *flakyStore) UpdateQuestion(ctx context.Context, app, id string, patch domain.QuestionPatch) (domain.Question, error) {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()
	if (s.failUpdateAt > 0 && n == s.failUpdateAt) || id == s.failUpdateID {
		return domain.Question{}, errBackend
	}
	return s.Store.UpdateQuestion(ctx, app, id, patch)
}

func (s *flakyStore) UploadAttachment(ctx context.Context, app, id string, f domain.File) (domain.Attachment, error) {
	if s.uploadErr != nil {
		return domain.Attachment{}, s.uploadErr
	}
	return s.Store.UploadAttachment(ctx, app, id, f)
}

func (s *flakyStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type notices struct {
	mu   sync.Mutex
	list []domain.Notice
}

func (n *notices) Notify(notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notice)
}

func (n *notices) All() []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notice(nil), n.list...)
}

var _ ports.Notifier = (*notices)(nil)

// seed stores questions with fixed ids: a root "root" in group "g1" plus the given non-root questions.
func seed(t *testing.T, store *flakyStore, questions ...domain.Question) {
	t.Helper()
	ctx := context.Background()
	_, err := store.Store.CreateQuestion(ctx, domain.Question{
		ID: "root", AppID: appID, WorkflowGroupID: "g1", IsRoot: true, Title: "Welcome", Text: "Welcome!", IsActive: true,
	})
	require.NoError(t, err)
	for _, q := range questions {
		q.AppID = appID
		if q.WorkflowGroupID == "" {
			q.WorkflowGroupID = "g1"
		}
		_, err := store.Store.CreateQuestion(ctx, q)
		require.NoError(t, err)
	}
}

func newController(t *testing.T, questions ...domain.Question) (*authoring.Controller, *flakyStore, *notices) {
	t.Helper()
	store := &flakyStore{Store: memory.NewStore()}
	seed(t, store, questions...)
	n := &notices{}
	c := authoring.New(appID, store, store, authoring.WithNotifier(n))
	require.NoError(t, c.Load(context.Background()))
	return c, store, n
}

func fourQuestions() []domain.Question {
	return []domain.Question{
		{ID: "a", Text: "A?", Order: 0, IsActive: true},
		{ID: "b", Text: "B?", Order: 1, IsActive: true},
		{ID: "c", Text: "C?", Order: 2, IsActive: true},
		{ID: "d", Text: "D?", Order: 3, IsActive: true},
	}
}

func groupOrder(t *testing.T, store ports.FlowStore, groupID string) ([]string, []int) {
	t.Helper()
	all, err := store.ListQuestions(context.Background(), appID)
	require.NoError(t, err)
	var ids []string
	var orders []int
	for _, q := range domain.NonRootInGroup(all, groupID) {
		ids = append(ids, q.ID)
		orders = append(orders, q.Order)
	}
	return ids, orders
}

func TestCreateFlow_AssignsGroupOnSave(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()

	st := c.CreateFlow("Hi! What brings you here today?")
	assert.True(t, st.Question.IsRoot)
	assert.Equal(t, 0, st.Question.Order)
	assert.Empty(t, st.Question.WorkflowGroupID)

	res, err := c.SaveQuestion(ctx, st)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Question.WorkflowGroupID)

	groups, err := store.ListGrouped(ctx, appID)
	require.NoError(t, err)
	for _, gf := range groups {
		roots := 0
		if gf.RootQuestion != nil {
			roots++
		}
		for _, q := range gf.Questions {
			if q.IsRoot {
				roots++
			}
		}
		assert.Equal(t, 1, roots, "group %s must have exactly one root", gf.Group.ID)
	}
}

func TestSaveQuestion_EmptyPromptBlocked(t *testing.T) {
	c, store, _ := newController(t)
	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "   "

	_, err := c.SaveQuestion(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrEmptyPrompt)
	assert.True(t, domain.IsValidation(err))

	all, _ := store.ListQuestions(context.Background(), appID)
	assert.Len(t, all, 1, "validation errors never reach the store")
}

func TestSaveQuestion_EmptyOptionBlocked(t *testing.T) {
	c, _, _ := newController(t)
	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "Pick"
	st.Question.Options = []domain.Option{{Text: "Yes"}, {Text: " "}}

	_, err := c.SaveQuestion(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrEmptyOption)
}

func TestSaveQuestion_BlankTitleRoundTrip(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()

	prompt := strings.Repeat("é", 60) + strings.Repeat("x", 90)
	st := c.AddQuestionToFlow("g1")
	st.Question.Text = prompt

	res, err := c.SaveQuestion(ctx, st)
	require.NoError(t, err)

	reloaded := authoring.New(appID, store, store)
	require.NoError(t, reloaded.Load(ctx))
	edited, err := reloaded.Edit(res.Question.ID)
	require.NoError(t, err)
	assert.Equal(t, string([]rune(prompt)[:100]), edited.Question.Title)
}

func TestSaveQuestion_PromptTrimmedBeforeTitle(t *testing.T) {
	c, _, _ := newController(t)

	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "   How many people?\n"
	res, err := c.SaveQuestion(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, "How many people?", res.Question.Text)
	assert.Equal(t, res.Question.Text, res.Question.Title)
}

func TestSaveQuestion_OptionMarkupRejected(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"Closing tag", "Yes</button><button>No"},
		{"Opening angle", "a < b"},
		{"Closing angle", "b > a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store, _ := newController(t)
			st := c.AddQuestionToFlow("g1")
			st.Question.Text = "Pick one"
			st.Question.Options = []domain.Option{{Text: tt.text}}

			_, err := c.SaveQuestion(context.Background(), st)
			require.ErrorIs(t, err, domain.ErrOptionMarkup)
			assert.True(t, domain.IsValidation(err))

			list, err := store.ListQuestions(context.Background(), appID)
			require.NoError(t, err)
			assert.Len(t, list, 1, "only the seeded root is stored")
		})
	}
}

func TestAddQuestionToFlow_OrderIsCount(t *testing.T) {
	c, _, _ := newController(t,
		domain.Question{ID: "a", Text: "A", Order: 0, IsActive: true},
		domain.Question{ID: "b", Text: "B", Order: 5, IsActive: false},
	)
	st := c.AddQuestionToFlow("g1")
	assert.Equal(t, 2, st.Question.Order)
	assert.Equal(t, "g1", st.Question.WorkflowGroupID)
	assert.False(t, st.Question.IsRoot)
}

func TestSaveQuestion_OptionLinks(t *testing.T) {
	c, store, n := newController(t,
		domain.Question{ID: "a", Text: "A", Order: 0, IsActive: true},
		domain.Question{ID: "x", WorkflowGroupID: "g2", Text: "Elsewhere", Order: 0, IsActive: true},
	)
	ctx := context.Background()

	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "Continue?"
	st.Question.Options = []domain.Option{{Text: "Back", NextQuestionID: "x"}}
	_, err := c.SaveQuestion(ctx, st)
	require.ErrorIs(t, err, domain.ErrDanglingLink, "other groups are not linkable")
	require.NotEmpty(t, n.All())
	assert.Equal(t, domain.NoticeWarning, n.All()[0].Level)

	st.Question.Options = []domain.Option{{Text: "Back", NextQuestionID: "a"}, {Text: "Done", IsTerminal: true}}
	res, err := c.SaveQuestion(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionTypeChoice, res.Question.QuestionTypeID)
	assert.Equal(t, 1, res.Question.Options[1].Order)

	all, _ := store.ListQuestions(ctx, appID)
	assert.Len(t, all, 4)
}

func TestSaveQuestion_DuplicateRoot(t *testing.T) {
	c, _, _ := newController(t)
	st := c.CreateFlow("Another opening")
	st.Question.WorkflowGroupID = "g1"

	_, err := c.SaveQuestion(context.Background(), st)
	require.ErrorIs(t, err, domain.ErrDuplicateRoot)
}

func TestSaveQuestion_UpdatePreservesAttachment(t *testing.T) {
	c, store, _ := newController(t, domain.Question{ID: "a", Text: "A", Order: 0, IsActive: true})
	ctx := context.Background()
	_, err := store.UploadAttachment(ctx, appID, "a", domain.File{Filename: "menu.pdf", Content: strings.NewReader("pdf")})
	require.NoError(t, err)
	require.NoError(t, c.Load(ctx))

	st, err := c.Edit("a")
	require.NoError(t, err)
	st.Question.Text = "A, revised"
	res, err := c.SaveQuestion(ctx, st)
	require.NoError(t, err)

	assert.Equal(t, "A, revised", res.Question.Text)
	require.NotNil(t, res.Question.Attachment)
	assert.Equal(t, "menu.pdf", res.Question.Attachment.Filename)
}

func TestSaveQuestion_AttachmentPartialSuccess(t *testing.T) {
	c, store, n := newController(t)
	store.uploadErr = errors.New("413 payload too large")
	ctx := context.Background()

	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "Here is our menu"
	st.File = &domain.File{Filename: "menu.pdf", Content: strings.NewReader("pdf")}

	res, err := c.SaveQuestion(ctx, st)
	require.NoError(t, err, "the question itself was saved")
	require.Error(t, res.AttachmentErr)
	assert.True(t, domain.IsPartial(res.AttachmentErr))
	assert.NotEmpty(t, res.Question.ID)
	assert.Nil(t, res.Question.Attachment)

	all, _ := store.ListQuestions(ctx, appID)
	assert.Len(t, all, 2, "question not rolled back")
	require.Len(t, n.All(), 1)
	assert.Contains(t, n.All()[0].Message, "413 payload too large")
}

func TestSaveQuestion_AttachmentUploaded(t *testing.T) {
	c, _, _ := newController(t)
	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "Here is our menu"
	st.File = &domain.File{Filename: "menu.pdf", ContentType: "application/pdf", Content: strings.NewReader("pdf")}

	res, err := c.SaveQuestion(context.Background(), st)
	require.NoError(t, err)
	require.NoError(t, res.AttachmentErr)
	require.NotNil(t, res.Question.Attachment)
	assert.True(t, res.Question.Attachment.HasFile)

	require.NoError(t, c.RemoveAttachment(context.Background(), res.Question.ID))
	edited, err := c.Edit(res.Question.ID)
	require.NoError(t, err)
	assert.Nil(t, edited.Question.Attachment)
}

func TestSaveQuestion_RemoteFailureLeavesCache(t *testing.T) {
	c, store, n := newController(t)
	store.createErr = errBackend

	st := c.AddQuestionToFlow("g1")
	st.Question.Text = "Will fail"
	_, err := c.SaveQuestion(context.Background(), st)
	require.ErrorIs(t, err, errBackend)
	class, _ := domain.ClassOf(err)
	assert.Equal(t, domain.ClassRemote, class)

	assert.Len(t, c.Questions(), 1)
	require.Len(t, n.All(), 1)
	assert.Equal(t, domain.Notice{Level: domain.NoticeError, Message: errBackend.Error()}, n.All()[0])
}

func TestDeleteQuestion_RenumbersSiblings(t *testing.T) {
	c, store, _ := newController(t, fourQuestions()...)

	require.NoError(t, c.DeleteQuestion(context.Background(), "b"))

	ids, orders := groupOrder(t, store, "g1")
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, []int{0, 1, 2}, orders)
	assert.Equal(t, 2, store.Updates(), "only changed orders are written")

	cached := domain.NonRootInGroup(c.Questions(), "g1")
	require.Len(t, cached, 3)
	assert.Equal(t, 2, cached[2].Order)
}

func TestDeleteQuestion_RenumberFailureIsPartial(t *testing.T) {
	c, store, n := newController(t, fourQuestions()...)
	store.failUpdateID = "d"

	err := c.DeleteQuestion(context.Background(), "b")
	require.Error(t, err)
	assert.True(t, domain.IsPartial(err))

	ids, _ := groupOrder(t, store, "g1")
	assert.Equal(t, []string{"a", "c", "d"}, ids, "deletion is not reverted")
	require.Len(t, n.All(), 1)
	assert.Equal(t, domain.NoticeWarning, n.All()[0].Level)
}

func TestDeleteQuestion_RootProtected(t *testing.T) {
	c, _, _ := newController(t)
	err := c.DeleteQuestion(context.Background(), "root")
	require.ErrorIs(t, err, domain.ErrRootProtected)
}

func TestDeleteFlow(t *testing.T) {
	c, store, _ := newController(t, fourQuestions()...)
	require.NoError(t, c.DeleteFlow(context.Background(), "g1"))

	all, _ := store.ListQuestions(context.Background(), appID)
	assert.Empty(t, all)
	assert.Empty(t, c.Groups())
}

func TestReorderQuestions_PersistsOnlyChanged(t *testing.T) {
	c, store, _ := newController(t, fourQuestions()...)

	require.NoError(t, c.ReorderQuestions(context.Background(), "g1", 3, 2))

	ids, orders := groupOrder(t, store, "g1")
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)
	assert.Equal(t, []int{0, 1, 2, 3}, orders)
	assert.Equal(t, 2, store.Updates())
}

func TestReorderQuestions_FailureRefetches(t *testing.T) {
	c, store, n := newController(t, fourQuestions()...)
	store.failUpdateAt = 2

	err := c.ReorderQuestions(context.Background(), "g1", 0, 3)
	require.ErrorIs(t, err, errBackend)

	remote, err := store.ListQuestions(context.Background(), appID)
	require.NoError(t, err)
	assert.ElementsMatch(t, remote, c.Questions(), "cache re-fetched from the store")
	assert.NotEmpty(t, n.All())
}

func TestReorderQuestions_OutOfRange(t *testing.T) {
	c, store, _ := newController(t, fourQuestions()...)
	err := c.ReorderQuestions(context.Background(), "g1", 0, 4)
	require.ErrorIs(t, err, domain.ErrIndexOutOfRange)
	assert.Zero(t, store.Updates())
}

func TestSetActive_LastActiveFlowProtected(t *testing.T) {
	c, store, n := newController(t, domain.Question{ID: "a", Text: "A", IsActive: true})
	ctx := context.Background()

	err := c.SetActive(ctx, "root", false)
	require.ErrorIs(t, err, domain.ErrLastActive)
	require.Len(t, n.All(), 1)

	require.NoError(t, c.SetActive(ctx, "a", false), "non-root questions can be hidden freely")

	second := c.CreateFlow("Second flow")
	_, err = c.SaveQuestion(ctx, second)
	require.NoError(t, err)
	require.NoError(t, c.SetActive(ctx, "root", false))

	all, _ := store.ListQuestions(ctx, appID)
	for _, q := range all {
		if q.ID == "root" {
			assert.False(t, q.IsActive)
		}
	}
}

func TestOptionViews_DanglingIsUnresolved(t *testing.T) {
	c, _, n := newController(t,
		domain.Question{ID: "a", Text: "A", Order: 0, IsActive: false},
		domain.Question{ID: "b", Text: "B", Title: "Bee", Order: 1, IsActive: true},
		domain.Question{ID: "c", Text: "C", Order: 2, IsActive: true, Options: []domain.Option{
			{Text: "To B", NextQuestionID: "b"},
			{Text: "Gone", NextQuestionID: "deleted"},
			{Text: "Next"},
			{Text: "Stop", IsTerminal: true},
		}},
	)

	views, err := c.OptionViews("c")
	require.NoError(t, err)
	require.Len(t, views, 4)

	assert.Equal(t, domain.LinkExplicit, views[0].Link)
	assert.Equal(t, "Bee", views[0].TargetTitle)
	assert.Equal(t, 1, views[0].Position, "inactive questions are not counted")

	assert.True(t, views[1].Unresolved)
	assert.Equal(t, "deleted", views[1].TargetID)

	assert.Equal(t, domain.LinkSequential, views[2].Link)
	assert.Equal(t, domain.LinkTerminal, views[3].Link)
	require.Len(t, n.All(), 1)
}

func TestDisplayOrder(t *testing.T) {
	c, _, _ := newController(t,
		domain.Question{ID: "a", Text: "A", Order: 0, IsActive: true},
		domain.Question{ID: "b", Text: "B", Order: 1, IsActive: false},
		domain.Question{ID: "c", Text: "C", Order: 2, IsActive: true},
	)
	assert.Equal(t, map[string]int{"a": 1, "c": 2}, c.DisplayOrder("g1"))
}
