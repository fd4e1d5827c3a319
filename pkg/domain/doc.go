/*
Package domain contains the core domain model of the chatflow platform.

It defines the conversation flow graph that operators author and the entities
the visitor widget exchanges with the remote collaborator. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Question: a node of the flow graph. Exactly one root question per group.
  - Option: a branching choice linking to another question by id, ending the
    flow, or falling back to the next question by stored order.
  - Graph: a flat id-indexed view used to resolve links without owning pointers.
    Links to deleted questions resolve as dangling instead of failing.
  - Plan: an offering with workflow groups attached in an explicit order.
  - Entry: one line of the visitor transcript.
*/
package domain
