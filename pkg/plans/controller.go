package plans

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// UnresolvedTitle is shown for an attachment whose flow cannot be resolved.
const UnresolvedTitle = "Loading…"

// AttachmentView is one attached flow prepared for display.
type AttachmentView struct {
	WorkflowGroupID string
	Order           int
	Title           string
	Active          bool
	// Resolved is false for deleted flows and null references. Such entries
	// keep their place until the operator removes them.
	Resolved bool
}

// Controller manages the ordered flow attachments of an app's plans.
// Attachment edits are local until Save.
type Controller struct {
	appID    string
	plans    ports.PlanStore
	flows    ports.FlowStore
	notifier ports.Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	list   []domain.Plan
	groups []domain.WorkflowGroup
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

// New creates a plan controller reading flows from the same store as the flow editor.
func New(appID string, plans ports.PlanStore, flows ports.FlowStore, opts ...Option) *Controller {
	c := &Controller{
		appID:    appID,
		plans:    plans,
		flows:    flows,
		notifier: ports.NopNotifier{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("app_id", appID)
	return c
}

// Load fetches plans and the flows they may reference.
func (c *Controller) Load(ctx context.Context) error {
	list, err := c.plans.ListPlans(ctx, c.appID)
	if err != nil {
		return c.remote("load plans", err)
	}
	grouped, err := c.flows.ListGrouped(ctx, c.appID)
	if err != nil {
		return c.remote("load flows", err)
	}
	groups := make([]domain.WorkflowGroup, 0, len(grouped))
	for _, gf := range grouped {
		groups = append(groups, gf.Group)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
	c.groups = groups
	return nil
}

// Plans returns a copy of the local plans.
func (c *Controller) Plans() []domain.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Plan, len(c.list))
	for i, p := range c.list {
		out[i] = p.Clone()
	}
	return out
}

// Groups returns the flows known to the controller.
func (c *Controller) Groups() []domain.WorkflowGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.WorkflowGroup(nil), c.groups...)
}

// AddPlan appends a new unsaved plan and returns its index.
func (c *Controller) AddPlan(title, description string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, domain.Plan{
		Title:             title,
		Description:       description,
		AttachedWorkflows: []domain.AttachedWorkflow{},
	})
	return len(c.list) - 1
}

// EditPlan changes a plan's title and description.
func (c *Controller) EditPlan(i int, title, description string) error {
	return c.mutate("edit plan", i, func(p *domain.Plan) error {
		p.Title = title
		p.Description = description
		return nil
	})
}

// AttachExisting appends a flow to a plan. Attaching requires the plan's title
// and description. An already attached flow is left alone with a notice and
// (false, nil) is returned. An empty group id is refused.
func (c *Controller) AttachExisting(i int, groupID string) (bool, error) {
	attached := false
	err := c.mutate("attach flow", i, func(p *domain.Plan) error {
		if groupID == "" {
			return fmt.Errorf("empty flow id: %w", domain.ErrNotFound)
		}
		if !p.Complete() {
			return domain.ErrPlanIncomplete
		}
		if p.Has(groupID) {
			return nil
		}
		p.AttachedWorkflows = append(p.AttachedWorkflows, domain.AttachedWorkflow{
			WorkflowGroupID: groupID,
			Order:           p.MaxOrder() + 1,
		})
		p.AttachedWorkflows = domain.Renumber(p.AttachedWorkflows)
		attached = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !attached {
		c.notify(domain.NoticeInfo, "This flow is already attached to the plan.")
	}
	return attached, nil
}

// RemoveAttachment detaches a flow and renumbers the rest from 0.
func (c *Controller) RemoveAttachment(i int, groupID string) error {
	return c.mutate("remove attachment", i, func(p *domain.Plan) error {
		kept := p.AttachedWorkflows[:0:0]
		for _, a := range p.AttachedWorkflows {
			if a.WorkflowGroupID != groupID {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(p.AttachedWorkflows) {
			return fmt.Errorf("flow %q: %w", groupID, domain.ErrNotFound)
		}
		p.AttachedWorkflows = domain.Renumber(kept)
		return nil
	})
}

// RemoveAttachmentAt detaches the entry at a position of the ordered view.
// It is the only way to remove a null reference.
func (c *Controller) RemoveAttachmentAt(i, pos int) error {
	return c.mutate("remove attachment", i, func(p *domain.Plan) error {
		sorted := p.Sorted()
		if pos < 0 || pos >= len(sorted) {
			return domain.ErrIndexOutOfRange
		}
		sorted = append(sorted[:pos:pos], sorted[pos+1:]...)
		p.AttachedWorkflows = domain.Renumber(sorted)
		return nil
	})
}

// ReorderAttachments moves an entry of the ordered view and renumbers every entry.
func (c *Controller) ReorderAttachments(i, from, to int) error {
	return c.mutate("reorder attachments", i, func(p *domain.Plan) error {
		sorted := p.Sorted()
		if from < 0 || from >= len(sorted) || to < 0 || to >= len(sorted) {
			return domain.ErrIndexOutOfRange
		}
		moved := domain.Move(sorted, from, to)
		for k := range moved {
			moved[k].Order = k
		}
		p.AttachedWorkflows = moved
		return nil
	})
}

// Views returns a plan's attachments in order. Unresolvable entries are kept
// with a placeholder title.
func (c *Controller) Views(i int) ([]AttachmentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.list) {
		return nil, domain.Validation("attachment views", domain.ErrIndexOutOfRange)
	}

	byID := make(map[string]domain.WorkflowGroup, len(c.groups))
	for _, g := range c.groups {
		byID[g.ID] = g
	}
	sorted := c.list[i].Sorted()
	views := make([]AttachmentView, 0, len(sorted))
	for _, a := range sorted {
		v := AttachmentView{WorkflowGroupID: a.WorkflowGroupID, Order: a.Order, Title: UnresolvedTitle}
		if g, ok := byID[a.WorkflowGroupID]; ok && a.WorkflowGroupID != "" {
			v.Title = g.Title
			v.Active = g.IsActive
			v.Resolved = true
		}
		views = append(views, v)
	}
	return views, nil
}

// Save upserts every plan. Null references are dropped from the payload only;
// on failure the local state is kept so the operator can retry.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	inputs := make([]domain.PlanInput, len(c.list))
	for i, p := range c.list {
		inputs[i] = p.Input()
	}
	c.mu.Unlock()

	saved, err := c.plans.UpsertPlans(ctx, c.appID, inputs)
	if err != nil {
		return c.remote("save plans", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.list {
		if i < len(saved) && c.list[i].ID == "" {
			c.list[i].ID = saved[i].ID
		}
	}
	c.logger.Debug("plans saved", "count", len(saved))
	return nil
}

func (c *Controller) mutate(op string, i int, fn func(*domain.Plan) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.list) {
		return domain.Validation(op, domain.ErrIndexOutOfRange)
	}
	p := c.list[i].Clone()
	if err := fn(&p); err != nil {
		return domain.Validation(op, err)
	}
	c.list[i] = p
	return nil
}

func (c *Controller) remote(op string, err error) error {
	c.logger.Warn("remote call failed", "op", op, "err", err)
	c.notify(domain.NoticeError, err.Error())
	return domain.Remote(op, err)
}

func (c *Controller) notify(level domain.NoticeLevel, msg string) {
	c.notifier.Notify(domain.Notice{Level: level, Message: msg})
}
