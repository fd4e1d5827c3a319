package domain

import "sort"

// WorkflowGroup is a named flow. Its title is derived from the root prompt.
type WorkflowGroup struct {
	ID       string `json:"id" yaml:"id"`
	AppID    string `json:"appId" yaml:"appId"`
	Title    string `json:"title" yaml:"title"`
	IsActive bool   `json:"isActive" yaml:"isActive"`
}

// GroupedFlow is one entry of the grouped-list collaborator call.
type GroupedFlow struct {
	Group        WorkflowGroup `json:"group"`
	RootQuestion *Question     `json:"rootQuestion,omitempty"`
	Questions    []Question    `json:"questions"`
}

// GroupQuestions builds grouped flows from a flat question list.
// Questions without a group are skipped. Groups are returned in the order their
// first question appears; non-root questions are sorted by stored order.
func GroupQuestions(questions []Question) []GroupedFlow {
	var ids []string
	byGroup := make(map[string]*GroupedFlow)

	for _, q := range questions {
		if q.WorkflowGroupID == "" {
			continue
		}
		gf, ok := byGroup[q.WorkflowGroupID]
		if !ok {
			gf = &GroupedFlow{Group: WorkflowGroup{ID: q.WorkflowGroupID, AppID: q.AppID}}
			byGroup[q.WorkflowGroupID] = gf
			ids = append(ids, q.WorkflowGroupID)
		}
		if q.IsRoot {
			root := q.Clone()
			gf.RootQuestion = &root
			gf.Group.Title = DeriveTitle(root.Text)
			gf.Group.IsActive = root.IsActive
			continue
		}
		gf.Questions = append(gf.Questions, q.Clone())
	}

	out := make([]GroupedFlow, 0, len(ids))
	for _, id := range ids {
		gf := byGroup[id]
		SortByOrder(gf.Questions)
		out = append(out, *gf)
	}
	return out
}

// NonRootInGroup returns the non-root questions of groupID sorted by order.
func NonRootInGroup(questions []Question, groupID string) []Question {
	var out []Question
	for _, q := range questions {
		if q.WorkflowGroupID == groupID && !q.IsRoot {
			out = append(out, q)
		}
	}
	SortByOrder(out)
	return out
}

// RootOf returns the root question of groupID.
func RootOf(questions []Question, groupID string) (Question, bool) {
	for _, q := range questions {
		if q.IsRoot && q.WorkflowGroupID == groupID && groupID != "" {
			return q, true
		}
	}
	return Question{}, false
}

// SortByOrder sorts in place by stored order, keeping input order on ties.
func SortByOrder(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
}
