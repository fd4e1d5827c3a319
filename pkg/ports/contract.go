package ports

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractAppID(suffix string) string {
	return "contract-" + suffix + "-" + time.Now().Format("20060102150405.000000000")
}

// RunFlowStoreContract runs a suite of tests to verify that a FlowStore implementation
// adheres to the defined interface contract.
func RunFlowStoreContract(t *testing.T, store FlowStore) {
	ctx := context.Background()
	appID := contractAppID("flows")

	root, err := store.CreateQuestion(ctx, domain.Question{
		AppID:    appID,
		IsRoot:   true,
		Title:    "Welcome",
		Text:     "Welcome! How can we help?",
		IsActive: true,
	})
	require.NoError(t, err, "creating a root question should not fail")
	require.NotEmpty(t, root.ID, "created question must have an id")
	require.NotEmpty(t, root.WorkflowGroupID, "root question must be assigned a group")

	t.Run("Create and List", func(t *testing.T) {
		q, err := store.CreateQuestion(ctx, domain.Question{
			AppID:           appID,
			WorkflowGroupID: root.WorkflowGroupID,
			Title:           "Name",
			Text:            "What is your name?",
			Order:           0,
			IsActive:        true,
		})
		require.NoError(t, err)

		all, err := store.ListQuestions(ctx, appID)
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, x := range all {
			ids = append(ids, x.ID)
		}
		assert.Contains(t, ids, root.ID)
		assert.Contains(t, ids, q.ID)
	})

	t.Run("Update preserves unspecified fields", func(t *testing.T) {
		q, err := store.CreateQuestion(ctx, domain.Question{
			AppID:           appID,
			WorkflowGroupID: root.WorkflowGroupID,
			Title:           "Email",
			Text:            "What is your email?",
			Order:           1,
			IsActive:        true,
			Options:         []domain.Option{{Text: "Skip", IsTerminal: true}},
		})
		require.NoError(t, err)

		updated, err := store.UpdateQuestion(ctx, appID, q.ID, domain.OrderPatch(7))
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Order)
		assert.Equal(t, "Email", updated.Title)
		assert.Equal(t, "What is your email?", updated.Text)
		require.Len(t, updated.Options, 1)
		assert.True(t, updated.Options[0].IsTerminal)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		_, err := store.UpdateQuestion(ctx, appID, "missing", domain.OrderPatch(1))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Grouped", func(t *testing.T) {
		groups, err := store.ListGrouped(ctx, appID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		gf := groups[0]
		assert.Equal(t, root.WorkflowGroupID, gf.Group.ID)
		require.NotNil(t, gf.RootQuestion)
		assert.Equal(t, root.ID, gf.RootQuestion.ID)
		for _, q := range gf.Questions {
			assert.False(t, q.IsRoot, "grouped questions must not include the root")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		q, err := store.CreateQuestion(ctx, domain.Question{
			AppID:           appID,
			WorkflowGroupID: root.WorkflowGroupID,
			Text:            "Temporary",
			Order:           9,
		})
		require.NoError(t, err)

		require.NoError(t, store.DeleteQuestion(ctx, appID, q.ID))
		assert.ErrorIs(t, store.DeleteQuestion(ctx, appID, q.ID), domain.ErrNotFound)

		all, err := store.ListQuestions(ctx, appID)
		require.NoError(t, err)
		for _, x := range all {
			assert.NotEqual(t, q.ID, x.ID)
		}
	})

	t.Run("Scoped by app", func(t *testing.T) {
		other, err := store.ListQuestions(ctx, appID+"-other")
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

// RunPlanStoreContract verifies a PlanStore implementation.
func RunPlanStoreContract(t *testing.T, store PlanStore) {
	ctx := context.Background()
	appID := contractAppID("plans")

	saved, err := store.UpsertPlans(ctx, appID, []domain.PlanInput{{
		Question: "Basic",
		Answer:   "Entry plan",
		AttachedWorkflows: []domain.WorkflowOrder{
			{WorkflowID: "g1", Order: 0},
			{WorkflowID: "g2", Order: 1},
		},
	}})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NotEmpty(t, saved[0].ID, "upsert must assign ids to new plans")

	t.Run("List", func(t *testing.T) {
		plans, err := store.ListPlans(ctx, appID)
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "Basic", plans[0].Title)
		assert.Equal(t, "Entry plan", plans[0].Description)
		assert.Equal(t, []domain.AttachedWorkflow{
			{WorkflowGroupID: "g1", Order: 0},
			{WorkflowGroupID: "g2", Order: 1},
		}, plans[0].AttachedWorkflows)
	})

	t.Run("Upsert replaces existing", func(t *testing.T) {
		_, err := store.UpsertPlans(ctx, appID, []domain.PlanInput{{
			ID:                saved[0].ID,
			Question:          "Basic+",
			Answer:            "Entry plan",
			AttachedWorkflows: []domain.WorkflowOrder{{WorkflowID: "g2", Order: 0}},
		}})
		require.NoError(t, err)

		plans, err := store.ListPlans(ctx, appID)
		require.NoError(t, err)
		require.Len(t, plans, 1)
		assert.Equal(t, "Basic+", plans[0].Title)
		assert.Equal(t, []domain.AttachedWorkflow{{WorkflowGroupID: "g2", Order: 0}}, plans[0].AttachedWorkflows)
	})
}

// RunAttachmentStoreContract verifies an AttachmentStore. The store must share
// state with flows so attachments show up on listed questions.
func RunAttachmentStoreContract(t *testing.T, store AttachmentStore, flows FlowStore) {
	ctx := context.Background()
	appID := contractAppID("attachments")

	q, err := flows.CreateQuestion(ctx, domain.Question{AppID: appID, IsRoot: true, Text: "Hello", IsActive: true})
	require.NoError(t, err)

	t.Run("Upload", func(t *testing.T) {
		att, err := store.UploadAttachment(ctx, appID, q.ID, domain.File{
			Filename:    "menu.pdf",
			ContentType: "application/pdf",
			Size:        4,
			Content:     strings.NewReader("%PDF"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.Attachment{Filename: "menu.pdf", ContentType: "application/pdf", HasFile: true}, att)

		all, err := flows.ListQuestions(ctx, appID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.NotNil(t, all[0].Attachment)
		assert.True(t, all[0].Attachment.HasFile)

		meta, rc, err := store.GetAttachment(ctx, appID, q.ID)
		require.NoError(t, err)
		defer rc.Close()
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(body))
		assert.Equal(t, "menu.pdf", meta.Filename)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteAttachment(ctx, appID, q.ID))
		all, err := flows.ListQuestions(ctx, appID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Nil(t, all[0].Attachment)

		_, _, err = store.GetAttachment(ctx, appID, q.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Upload Non-Existent", func(t *testing.T) {
		_, err := store.UploadAttachment(ctx, appID, "missing", domain.File{Filename: "a.txt", Content: strings.NewReader("a")})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// RunFileStoreContract verifies a FileStore.
func RunFileStoreContract(t *testing.T, store FileStore) {
	ctx := context.Background()
	appID := contractAppID("files")

	up, err := store.PutFile(ctx, appID, domain.File{
		Filename:    "photo.png",
		ContentType: "image/png",
		Content:     strings.NewReader("not really a png"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, up.FileID)
	assert.Equal(t, "photo.png", up.Filename)
	assert.Equal(t, "image/png", up.ContentType)

	t.Run("Get", func(t *testing.T) {
		meta, rc, err := store.GetFile(ctx, appID, up.FileID)
		require.NoError(t, err)
		defer rc.Close()
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "not really a png", string(body))
		assert.Equal(t, up.FileID, meta.FileID)
		assert.Equal(t, int64(len(body)), meta.Size)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, _, err := store.GetFile(ctx, appID, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
