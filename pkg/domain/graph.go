package domain

import (
	"errors"
	"fmt"
)

// LinkKind classifies where an option leads.
type LinkKind string

const (
	LinkExplicit   LinkKind = "explicit"
	LinkSequential LinkKind = "sequential"
	LinkTerminal   LinkKind = "terminal"
	LinkDangling   LinkKind = "dangling"
)

// Link is the resolved target of an option.
type Link struct {
	Kind   LinkKind
	Target *Question
}

// Graph is a flat collection of questions addressed by id.
// Back-references (nextQuestionId) are resolved by lookup and misses are tolerated.
type Graph struct {
	questions []Question
	index     map[string]int
}

// NewGraph indexes the given questions. Later duplicates of an id win.
func NewGraph(questions []Question) *Graph {
	g := &Graph{
		questions: make([]Question, len(questions)),
		index:     make(map[string]int, len(questions)),
	}
	for i, q := range questions {
		g.questions[i] = q.Clone()
		if q.ID != "" {
			g.index[q.ID] = i
		}
	}
	return g
}

// Len returns the number of indexed questions.
func (g *Graph) Len() int {
	return len(g.questions)
}

// Questions returns a copy of the indexed questions.
func (g *Graph) Questions() []Question {
	out := make([]Question, len(g.questions))
	for i, q := range g.questions {
		out[i] = q.Clone()
	}
	return out
}

// Lookup finds a question by id.
func (g *Graph) Lookup(id string) (Question, bool) {
	i, ok := g.index[id]
	if !ok {
		return Question{}, false
	}
	return g.questions[i].Clone(), true
}

// Resolve classifies an option's link. Dangling is returned for ids that no longer exist.
// An inactive explicit target is still resolvable.
func (g *Graph) Resolve(opt Option) Link {
	if opt.IsTerminal {
		return Link{Kind: LinkTerminal}
	}
	if opt.NextQuestionID == "" {
		return Link{Kind: LinkSequential}
	}
	q, ok := g.Lookup(opt.NextQuestionID)
	if !ok {
		return Link{Kind: LinkDangling}
	}
	return Link{Kind: LinkExplicit, Target: &q}
}

// Entry returns the first active non-root question of a group.
func (g *Graph) Entry(groupID string) (Question, bool) {
	for _, q := range NonRootInGroup(g.questions, groupID) {
		if q.IsActive {
			return q.Clone(), true
		}
	}
	return Question{}, false
}

// After returns the next active non-root question of the same group by stored order.
// For a root question this is the group's entry question.
func (g *Graph) After(from Question) (Question, bool) {
	if from.IsRoot {
		return g.Entry(from.WorkflowGroupID)
	}
	for _, q := range NonRootInGroup(g.questions, from.WorkflowGroupID) {
		if q.IsActive && q.Order > from.Order {
			return q.Clone(), true
		}
	}
	return Question{}, false
}

// Next walks one step from a question. A nil option means a free-text answer.
// The boolean is false when the flow ends, including on dangling links.
func (g *Graph) Next(from Question, opt *Option) (Question, bool) {
	if opt == nil {
		return g.After(from)
	}
	link := g.Resolve(*opt)
	switch link.Kind {
	case LinkExplicit:
		return *link.Target, true
	case LinkSequential:
		return g.After(from)
	default:
		return Question{}, false
	}
}

// ValidateOption rejects an option whose link is set but not among candidates.
func ValidateOption(opt Option, candidates []Question) (Option, error) {
	if opt.NextQuestionID == "" {
		return opt, nil
	}
	for _, c := range candidates {
		if c.ID == opt.NextQuestionID {
			return opt, nil
		}
	}
	return opt, fmt.Errorf("%w: option %q links to %q", ErrDanglingLink, opt.Text, opt.NextQuestionID)
}

// ComputeDisplayOrder maps question id to its 1-based position in the flow.
// Only active non-root questions of the group are counted, so hiding a question
// does not renumber the stored order of the rest.
func ComputeDisplayOrder(group WorkflowGroup, questions []Question) map[string]int {
	positions := make(map[string]int)
	pos := 0
	for _, q := range NonRootInGroup(questions, group.ID) {
		if !q.IsActive {
			continue
		}
		pos++
		positions[q.ID] = pos
	}
	return positions
}

// LinkableCandidates lists questions an option of excludingID may link to.
// Without a group (a new standalone flow) the whole universe is linkable.
func LinkableCandidates(currentGroupID string, all []Question, excludingID string) []Question {
	var out []Question
	for _, q := range all {
		if excludingID != "" && q.ID == excludingID {
			continue
		}
		if currentGroupID != "" && q.WorkflowGroupID != currentGroupID {
			continue
		}
		out = append(out, q)
	}
	return out
}

// ActiveCount counts active non-root questions of a group.
func ActiveCount(questions []Question, groupID string) int {
	n := 0
	for _, q := range NonRootInGroup(questions, groupID) {
		if q.IsActive {
			n++
		}
	}
	return n
}

// ValidateFlow checks the structural invariants of one grouped flow.
func ValidateFlow(gf GroupedFlow) error {
	var errs []error
	if gf.RootQuestion == nil {
		errs = append(errs, fmt.Errorf("group %q: %w", gf.Group.ID, ErrMissingRoot))
	}

	all := append([]Question(nil), gf.Questions...)
	if gf.RootQuestion != nil {
		all = append(all, *gf.RootQuestion)
	}

	seen := make(map[int]string)
	for _, q := range gf.Questions {
		if q.IsRoot {
			errs = append(errs, fmt.Errorf("group %q: question %q: %w", gf.Group.ID, q.ID, ErrDuplicateRoot))
			continue
		}
		if other, dup := seen[q.Order]; dup {
			errs = append(errs, fmt.Errorf("group %q: questions %q and %q share order %d: %w",
				gf.Group.ID, other, q.ID, q.Order, ErrDuplicateOrder))
		}
		seen[q.Order] = q.ID
	}

	for _, q := range all {
		candidates := LinkableCandidates(gf.Group.ID, all, q.ID)
		for _, opt := range q.Options {
			if _, err := ValidateOption(opt, candidates); err != nil {
				errs = append(errs, fmt.Errorf("group %q: question %q: %w", gf.Group.ID, q.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}
