/*
Package ports defines the driven ports (interfaces) of chatflow.

These interfaces decouple the authoring controllers and the widget runtime from
the remote collaborator, so the same code runs against the in-memory store, Redis,
or the HTTP API.

# Key Interfaces

  - FlowStore: questions and grouped flows (list, create, partial update, delete).
  - PlanStore: plans and their ordered flow attachments (list, upsert).
  - AttachmentStore and FileStore: question attachments and the chat upload side channel.
  - Channel and Dialer: the persistent chat connection used by the widget.
  - HostNotifier: signals posted to the page embedding the widget.
*/
package ports
