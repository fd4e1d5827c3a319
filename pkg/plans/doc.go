// Package plans implements the plan attachment surface: attaching existing
// flows to a plan in an explicit order.
//
// Orders are renumbered to 0..n-1 on every mutation. Flows that cannot be
// resolved (deleted since, or null references) stay in the list with a
// placeholder until the operator removes them.
package plans
