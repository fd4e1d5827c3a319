package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan_InputDropsNullReferences(t *testing.T) {
	p := Plan{
		Title:       "Gold",
		Description: "Everything",
		AttachedWorkflows: []AttachedWorkflow{
			{WorkflowGroupID: "g2", Order: 1},
			{WorkflowGroupID: "", Order: 2},
			{WorkflowGroupID: "g1", Order: 0},
		},
	}

	in := p.Input()
	assert.Equal(t, "Gold", in.Question)
	assert.Equal(t, "Everything", in.Answer)
	assert.Equal(t, []WorkflowOrder{{WorkflowID: "g1", Order: 0}, {WorkflowID: "g2", Order: 1}}, in.AttachedWorkflows)
}

func TestRenumber(t *testing.T) {
	got := Renumber([]AttachedWorkflow{
		{WorkflowGroupID: "b", Order: 5},
		{WorkflowGroupID: "a", Order: 2},
		{WorkflowGroupID: "c", Order: 5},
	})
	assert.Equal(t, []AttachedWorkflow{
		{WorkflowGroupID: "a", Order: 0},
		{WorkflowGroupID: "b", Order: 1},
		{WorkflowGroupID: "c", Order: 2},
	}, got)
}

func TestPlan_Complete(t *testing.T) {
	assert.False(t, Plan{Title: "x"}.Complete())
	assert.False(t, Plan{Title: "x", Description: "   "}.Complete())
	assert.True(t, Plan{Title: "x", Description: "y"}.Complete())
	assert.Equal(t, -1, Plan{}.MaxOrder())
}
