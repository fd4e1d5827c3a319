package authoring

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// OptionView is an option prepared for display in the editor.
type OptionView struct {
	Option      domain.Option
	Link        domain.LinkKind
	TargetID    string
	TargetTitle string
	// Position is the 1-based display position of an active target, 0 otherwise.
	Position int
	// Unresolved marks a link to a question that no longer exists.
	Unresolved bool
}

// OptionViews resolves the options of a cached question. Dangling links are
// marked unresolved and reported with a notice; they never fail the call.
func (c *Controller) OptionViews(id string) ([]OptionView, error) {
	q, ok := c.lookup(id)
	if !ok {
		return nil, domain.Validation("option views", fmt.Errorf("question %q: %w", id, domain.ErrNotFound))
	}

	all := c.Questions()
	g := domain.NewGraph(all)
	positions := make(map[string]map[string]int)

	views := make([]OptionView, 0, len(q.Options))
	dangling := 0
	for _, opt := range q.Options {
		link := g.Resolve(opt)
		v := OptionView{Option: opt, Link: link.Kind}
		switch link.Kind {
		case domain.LinkExplicit:
			target := link.Target
			v.TargetID = target.ID
			v.TargetTitle = target.Title
			group, ok := positions[target.WorkflowGroupID]
			if !ok {
				group = domain.ComputeDisplayOrder(domain.WorkflowGroup{ID: target.WorkflowGroupID}, all)
				positions[target.WorkflowGroupID] = group
			}
			v.Position = group[target.ID]
		case domain.LinkDangling:
			v.TargetID = opt.NextQuestionID
			v.Unresolved = true
			dangling++
		}
		views = append(views, v)
	}
	if dangling > 0 {
		c.notify(domain.NoticeWarning, fmt.Sprintf("%d option(s) link to a question that no longer exists.", dangling))
	}
	return views, nil
}
