package authoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/go-playground/validator/v10"
)

// Staged is a question being edited, plus an optional file to attach after save.
// Discarding a Staged value discards the edit.
type Staged struct {
	Question domain.Question
	File     *domain.File
}

// SaveResult reports a save. AttachmentErr is set when the question was saved
// but the staged file could not be uploaded; the question is not rolled back.
type SaveResult struct {
	Question      domain.Question
	AttachmentErr error
}

// Controller orchestrates the operator's edits to the flows of one app.
//
// The remote FlowStore is the source of truth. The controller keeps a cache of
// the app's questions, updated only after the owning remote call succeeds.
// Remote calls are never retried.
type Controller struct {
	appID       string
	flows       ports.FlowStore
	attachments ports.AttachmentStore
	notifier    ports.Notifier
	logger      *slog.Logger

	mu        sync.Mutex
	questions []domain.Question
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the destination of operator notices.
func WithNotifier(n ports.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller for appID.
func New(appID string, flows ports.FlowStore, attachments ports.AttachmentStore, opts ...Option) *Controller {
	c := &Controller{
		appID:       appID,
		flows:       flows,
		attachments: attachments,
		notifier:    ports.NopNotifier{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("app_id", appID)
	return c
}

// Load replaces the cache with the remote question list.
func (c *Controller) Load(ctx context.Context) error {
	list, err := c.flows.ListQuestions(ctx, c.appID)
	if err != nil {
		return c.remote("load questions", err)
	}
	c.mu.Lock()
	c.questions = list
	c.mu.Unlock()
	return nil
}

// Questions returns a copy of the cached questions.
func (c *Controller) Questions() []domain.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.questions)
}

// Groups returns the cached questions grouped into flows.
func (c *Controller) Groups() []domain.GroupedFlow {
	return domain.GroupQuestions(c.Questions())
}

// DisplayOrder returns 1-based positions of the active questions of a group.
func (c *Controller) DisplayOrder(groupID string) map[string]int {
	return domain.ComputeDisplayOrder(domain.WorkflowGroup{ID: groupID}, c.Questions())
}

// CreateFlow stages the root question of a new flow. The group id is assigned
// by the store on first save.
func (c *Controller) CreateFlow(openingPrompt string) *Staged {
	return &Staged{Question: domain.Question{
		AppID:          c.appID,
		IsRoot:         true,
		Text:           openingPrompt,
		QuestionTypeID: domain.QuestionTypeText,
		Order:          0,
		IsActive:       true,
	}}
}

// AddQuestionToFlow stages a new question at the end of a flow. The order is
// the count of existing non-root questions, which tolerates gaps.
func (c *Controller) AddQuestionToFlow(groupID string) *Staged {
	c.mu.Lock()
	next := len(domain.NonRootInGroup(c.questions, groupID))
	c.mu.Unlock()

	return &Staged{Question: domain.Question{
		AppID:           c.appID,
		WorkflowGroupID: groupID,
		QuestionTypeID:  domain.QuestionTypeText,
		Order:           next,
		IsActive:        true,
	}}
}

// Edit stages an existing question.
func (c *Controller) Edit(id string) (*Staged, error) {
	q, ok := c.lookup(id)
	if !ok {
		return nil, domain.Validation("edit question", fmt.Errorf("question %q: %w", id, domain.ErrNotFound))
	}
	return &Staged{Question: q}, nil
}

// Candidates lists the questions an option of the staged question may link to.
func (c *Controller) Candidates(st *Staged) []domain.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.LinkableCandidates(st.Question.WorkflowGroupID, cloneAll(c.questions), st.Question.ID)
}

// SaveQuestion validates and persists a staged question, creating it when it
// has no id and updating every editable field otherwise. A staged file is
// uploaded afterwards as an independent step.
func (c *Controller) SaveQuestion(ctx context.Context, st *Staged) (SaveResult, error) {
	q, err := c.prepare(st.Question)
	if err != nil {
		if errors.Is(err, domain.ErrDanglingLink) {
			c.notify(domain.NoticeWarning, err.Error())
		}
		return SaveResult{}, domain.Validation("save question", err)
	}

	var saved domain.Question
	if q.ID == "" {
		saved, err = c.flows.CreateQuestion(ctx, q)
	} else {
		saved, err = c.flows.UpdateQuestion(ctx, c.appID, q.ID, domain.EditablePatch(q))
	}
	if err != nil {
		return SaveResult{}, c.remote("save question", err)
	}
	c.store(saved)
	c.logger.Debug("question saved", "question_id", saved.ID, "group_id", saved.WorkflowGroupID)

	result := SaveResult{Question: saved}
	if st.File == nil {
		return result, nil
	}

	att, err := c.attachments.UploadAttachment(ctx, c.appID, saved.ID, *st.File)
	if err != nil {
		c.logger.Warn("attachment upload failed", "question_id", saved.ID, "err", err)
		c.notify(domain.NoticeWarning, "Question saved, but the attachment could not be uploaded: "+err.Error())
		result.AttachmentErr = domain.Partial("upload attachment", err)
		return result, nil
	}
	saved.Attachment = &att
	c.store(saved)
	result.Question = saved
	return result, nil
}

type draft struct {
	Text    string        `validate:"required"`
	Options []draftOption `validate:"dive"`
}

// Option text becomes a button label, so tag delimiters are refused.
type draftOption struct {
	Text string `validate:"required,excludesall=<>"`
}

var draftValidate = validator.New()

// prepare applies defaults and the local validation rules.
func (c *Controller) prepare(in domain.Question) (domain.Question, error) {
	q := in.Clone()
	q.AppID = c.appID
	q.Text = strings.TrimSpace(q.Text)

	d := draft{Text: q.Text}
	for _, o := range q.Options {
		d.Options = append(d.Options, draftOption{Text: strings.TrimSpace(o.Text)})
	}
	if err := draftValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && strings.Contains(verrs[0].Namespace(), "Options") {
			if verrs[0].Tag() == "excludesall" {
				return q, domain.ErrOptionMarkup
			}
			return q, domain.ErrEmptyOption
		}
		return q, domain.ErrEmptyPrompt
	}

	if strings.TrimSpace(q.Title) == "" {
		q.Title = domain.DeriveTitle(q.Text)
	}
	if q.QuestionTypeID == 0 {
		q.QuestionTypeID = domain.QuestionTypeText
		if len(q.Options) > 0 {
			q.QuestionTypeID = domain.QuestionTypeChoice
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if q.IsRoot && q.WorkflowGroupID != "" {
		if root, ok := domain.RootOf(c.questions, q.WorkflowGroupID); ok && root.ID != q.ID {
			return q, fmt.Errorf("group %q: %w", q.WorkflowGroupID, domain.ErrDuplicateRoot)
		}
	}

	candidates := domain.LinkableCandidates(q.WorkflowGroupID, c.questions, q.ID)
	for i := range q.Options {
		q.Options[i].Order = i
		if _, err := domain.ValidateOption(q.Options[i], candidates); err != nil {
			return q, err
		}
	}
	return q, nil
}

// RemoveAttachment deletes the file attached to a question.
func (c *Controller) RemoveAttachment(ctx context.Context, id string) error {
	if err := c.attachments.DeleteAttachment(ctx, c.appID, id); err != nil {
		return c.remote("remove attachment", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.questions {
		if c.questions[i].ID == id {
			c.questions[i].Attachment = nil
		}
	}
	return nil
}

// DeleteQuestion deletes a non-root question and renumbers the remaining
// questions of its group to 0..n-1, persisting each changed order. Renumbering
// failures are reported as a partial error; the deletion is not reverted.
func (c *Controller) DeleteQuestion(ctx context.Context, id string) error {
	q, ok := c.lookup(id)
	if !ok {
		return domain.Validation("delete question", fmt.Errorf("question %q: %w", id, domain.ErrNotFound))
	}
	if q.IsRoot {
		c.notify(domain.NoticeWarning, "The opening question can only be removed by deleting the whole flow.")
		return domain.Validation("delete question", domain.ErrRootProtected)
	}

	if err := c.flows.DeleteQuestion(ctx, c.appID, id); err != nil {
		return c.remote("delete question", err)
	}
	c.forget(id)

	c.mu.Lock()
	siblings := domain.NonRootInGroup(c.questions, q.WorkflowGroupID)
	c.mu.Unlock()

	var errs []error
	for _, i := range domain.ChangedOrders(siblings, orderOf) {
		updated, err := c.flows.UpdateQuestion(ctx, c.appID, siblings[i].ID, domain.OrderPatch(i))
		if err != nil {
			errs = append(errs, fmt.Errorf("question %q: %w", siblings[i].ID, err))
			continue
		}
		c.store(updated)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Warn("renumbering after delete failed", "question_id", id, "err", err)
		c.notify(domain.NoticeWarning, fmt.Sprintf("Question deleted, but %d remaining question(s) could not be renumbered.", len(errs)))
		return domain.Partial("renumber questions", err)
	}
	return nil
}

// DeleteFlow deletes every question of a group, the root last.
func (c *Controller) DeleteFlow(ctx context.Context, groupID string) error {
	c.mu.Lock()
	members := domain.NonRootInGroup(c.questions, groupID)
	root, hasRoot := domain.RootOf(c.questions, groupID)
	c.mu.Unlock()

	if hasRoot {
		members = append(members, root)
	}
	if len(members) == 0 {
		return domain.Validation("delete flow", fmt.Errorf("group %q: %w", groupID, domain.ErrNotFound))
	}
	for _, q := range members {
		if err := c.flows.DeleteQuestion(ctx, c.appID, q.ID); err != nil {
			return c.remote("delete flow", err)
		}
		c.forget(q.ID)
	}
	return nil
}

// ReorderQuestions moves a question within its group and persists only the
// orders that changed. On failure the cache is re-fetched from the store.
func (c *Controller) ReorderQuestions(ctx context.Context, groupID string, from, to int) error {
	c.mu.Lock()
	list := domain.NonRootInGroup(c.questions, groupID)
	c.mu.Unlock()

	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return domain.Validation("reorder questions", domain.ErrIndexOutOfRange)
	}

	moved := domain.Move(list, from, to)
	for _, i := range domain.ChangedOrders(moved, orderOf) {
		updated, err := c.flows.UpdateQuestion(ctx, c.appID, moved[i].ID, domain.OrderPatch(i))
		if err != nil {
			rerr := c.remote("reorder questions", err)
			if lerr := c.Load(ctx); lerr != nil {
				c.logger.Error("re-fetch after failed reorder", "err", lerr)
			}
			return rerr
		}
		c.store(updated)
	}
	return nil
}

// SetActive shows or hides a question. Hiding the last active flow of the app
// is refused.
func (c *Controller) SetActive(ctx context.Context, id string, active bool) error {
	q, ok := c.lookup(id)
	if !ok {
		return domain.Validation("set active", fmt.Errorf("question %q: %w", id, domain.ErrNotFound))
	}
	if q.IsActive == active {
		return nil
	}
	if !active && q.IsRoot && c.activeFlows() <= 1 {
		c.notify(domain.NoticeWarning, "At least one flow must stay active.")
		return domain.Validation("set active", domain.ErrLastActive)
	}

	updated, err := c.flows.UpdateQuestion(ctx, c.appID, id, domain.QuestionPatch{IsActive: &active})
	if err != nil {
		return c.remote("set active", err)
	}
	c.store(updated)
	return nil
}

func (c *Controller) activeFlows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.questions {
		if q.IsRoot && q.IsActive {
			n++
		}
	}
	return n
}

func (c *Controller) lookup(id string) (domain.Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.questions {
		if q.ID == id {
			return q.Clone(), true
		}
	}
	return domain.Question{}, false
}

// store replaces or appends q in the cache.
func (c *Controller) store(q domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.questions {
		if c.questions[i].ID == q.ID {
			c.questions[i] = q.Clone()
			return
		}
	}
	c.questions = append(c.questions, q.Clone())
}

func (c *Controller) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.questions[:0]
	for _, q := range c.questions {
		if q.ID != id {
			out = append(out, q)
		}
	}
	c.questions = out
}

// remote surfaces a collaborator failure verbatim and classifies it.
func (c *Controller) remote(op string, err error) error {
	c.logger.Warn("remote call failed", "op", op, "err", err)
	c.notify(domain.NoticeError, err.Error())
	return domain.Remote(op, err)
}

func (c *Controller) notify(level domain.NoticeLevel, msg string) {
	c.notifier.Notify(domain.Notice{Level: level, Message: msg})
}

func orderOf(q domain.Question) int {
	return q.Order
}

func cloneAll(list []domain.Question) []domain.Question {
	out := make([]domain.Question, len(list))
	for i, q := range list {
		out[i] = q.Clone()
	}
	return out
}
