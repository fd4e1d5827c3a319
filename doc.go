/*
Package chatflow is a chatbot flow platform: operators author directed graphs
of questions with branching options, attach whole flows to service plans, and
visitors talk to the resulting bot through an embeddable chat widget.

# Concept

A flow is a workflow group owning one root question (the opening message) and
ordered follow-up questions. Options either link to a question explicitly,
end the conversation, or fall back to the next active question by order.
Links are ids, never pointers, so a deleted target is tolerated as a dangling
link instead of breaking the graph.

# Packages

  - pkg/domain: the graph model and its validation rules. Pure, no I/O.
  - pkg/authoring: the flow editor controller.
  - pkg/plans: the plan attachment controller.
  - pkg/widget: the visitor chat session state machine.
  - pkg/render: the bot message tag parser.
  - pkg/conversation: a reference collaborator walking a flow for a visitor.
  - pkg/adapters: memory and redis stores, the HTTP API and websocket channel.

# Usage

	store := memory.NewStore()
	ws := chatflow.NewWorkspace("app-1", store)
	if err := ws.Load(ctx); err != nil {
		log.Fatal(err)
	}

	res, err := ws.Flows.SaveQuestion(ctx, ws.Flows.CreateFlow("Hi! How can we help?"))
	if err != nil {
		log.Fatal(err)
	}

	ws.Plans.Load(ctx)
	i := ws.Plans.AddPlan("Basic", "Entry plan")
	ws.Plans.AttachExisting(i, res.Question.WorkflowGroupID)
	ws.Plans.Save(ctx)

Serve the API and chat endpoint with cmd/chatflow:

	chatflow serve --config chatflow.yaml
*/
package chatflow
