// Package tools implements the tool execution pipeline: a registry mapping
// tool names to typed or dyn-safe handlers, a middleware chain for
// permission checks and output shaping, and an order-preserving batch
// executor for parallel tool calls.
package tools

// Name is the strong type for tool identifiers. Using a distinct type
// instead of a bare string keeps registry lookups from accidentally mixing
// free-form strings with tool identifiers.
type Name string
