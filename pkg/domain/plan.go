package domain

import (
	"sort"
	"strings"
)

// Plan is an operator-defined offering with flows attached in an explicit order.
type Plan struct {
	ID                string             `json:"id,omitempty" yaml:"id,omitempty"`
	Title             string             `json:"title" yaml:"title"`
	Description       string             `json:"description" yaml:"description"`
	AttachedWorkflows []AttachedWorkflow `json:"attachedWorkflows" yaml:"attachedWorkflows"`
}

// AttachedWorkflow references a workflow group. An empty id is a null reference
// kept only to preserve the operator's ordering until they remove it.
type AttachedWorkflow struct {
	WorkflowGroupID string `json:"workflowGroupId,omitempty" yaml:"workflowGroupId,omitempty"`
	Order           int    `json:"order" yaml:"order"`
}

// PlanInput is the wire shape accepted by plan upsert.
type PlanInput struct {
	ID                string          `json:"id,omitempty"`
	Question          string          `json:"question"`
	Answer            string          `json:"answer"`
	AttachedWorkflows []WorkflowOrder `json:"attachedWorkflows"`
}

// WorkflowOrder is one flattened attachment.
type WorkflowOrder struct {
	WorkflowID string `json:"workflowId"`
	Order      int    `json:"order"`
}

// Complete reports whether the plan has the fields required before attaching flows.
func (p Plan) Complete() bool {
	return strings.TrimSpace(p.Title) != "" && strings.TrimSpace(p.Description) != ""
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	c := p
	c.AttachedWorkflows = append([]AttachedWorkflow(nil), p.AttachedWorkflows...)
	return c
}

// Has reports whether groupID is already attached.
func (p Plan) Has(groupID string) bool {
	for _, a := range p.AttachedWorkflows {
		if a.WorkflowGroupID == groupID {
			return true
		}
	}
	return false
}

// MaxOrder returns the largest attachment order, or -1 for an empty list.
func (p Plan) MaxOrder() int {
	highest := -1
	for _, a := range p.AttachedWorkflows {
		if a.Order > highest {
			highest = a.Order
		}
	}
	return highest
}

// Sorted returns the attachments ordered by stored order, stable on ties.
func (p Plan) Sorted() []AttachedWorkflow {
	out := append([]AttachedWorkflow(nil), p.AttachedWorkflows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Renumber sorts attachments and rewrites orders to 0..n-1.
func Renumber(list []AttachedWorkflow) []AttachedWorkflow {
	out := append([]AttachedWorkflow(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i
	}
	return out
}

// Input flattens the plan for transmission, dropping null workflow references.
func (p Plan) Input() PlanInput {
	in := PlanInput{
		ID:                p.ID,
		Question:          p.Title,
		Answer:            p.Description,
		AttachedWorkflows: []WorkflowOrder{},
	}
	for _, a := range p.Sorted() {
		if a.WorkflowGroupID == "" {
			continue
		}
		in.AttachedWorkflows = append(in.AttachedWorkflows, WorkflowOrder{WorkflowID: a.WorkflowGroupID, Order: a.Order})
	}
	return in
}

// PlanFromInput is the inverse of Input as stored by the collaborator.
func PlanFromInput(in PlanInput) Plan {
	p := Plan{
		ID:                in.ID,
		Title:             in.Question,
		Description:       in.Answer,
		AttachedWorkflows: make([]AttachedWorkflow, 0, len(in.AttachedWorkflows)),
	}
	for _, w := range in.AttachedWorkflows {
		p.AttachedWorkflows = append(p.AttachedWorkflows, AttachedWorkflow{WorkflowGroupID: w.WorkflowID, Order: w.Order})
	}
	return p
}
