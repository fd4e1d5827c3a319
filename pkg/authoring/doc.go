// Package authoring implements the flow editor: staging, saving, deleting,
// reordering and toggling the questions of an app's conversation flows.
//
// Local rules (non-empty prompt, linkable options, one root per group) are
// checked before any remote call. Remote failures surface as notices and
// classified errors and leave the cache as it was; only a failed reorder
// re-fetches the list, since its partial writes cannot be verified locally.
package authoring
