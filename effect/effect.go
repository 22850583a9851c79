// Package effect defines the declarative side-effect vocabulary a Turn
// emits in its TurnOutput. The turn loop never executes an Effect itself;
// an Orchestrator interprets the list after the turn returns, which is what
// makes local and durable execution swappable (spec §4.4).
package effect

// Scope segments the StateStore keyspace an effect addresses.
type Scope struct {
	Namespace string
	Key       string
}

// Effect is the closed tagged union of side-effects a Turn may declare.
type Effect interface {
	isEffect()
}

type (
	// WriteMemory persists Value at Scope in the StateStore.
	WriteMemory struct {
		Scope Scope
		Value any
	}

	// DeleteMemory removes Scope from the StateStore.
	DeleteMemory struct {
		Scope Scope
	}

	// Signal asynchronously notifies another workflow by name, carrying an
	// arbitrary JSON-serializable payload.
	Signal struct {
		Workflow string
		Payload  any
	}

	// Delegate recursively dispatches a new agent run and, unlike Signal,
	// expects the orchestrator to resolve a result.
	Delegate struct {
		Agent string
		Input any
	}

	// Handoff transfers control of the current conversation to a different
	// agent, carrying forward the supplied input.
	Handoff struct {
		Agent string
		Input any
	}

	// Log records a structured message on the observability channel.
	Log struct {
		Level   string
		Message string
		Fields  map[string]any
	}

	// Custom carries an orchestrator-specific effect not covered by the
	// built-in vocabulary. Kind namespaces the payload shape.
	Custom struct {
		Kind    string
		Payload any
	}
)

func (WriteMemory) isEffect()  {}
func (DeleteMemory) isEffect() {}
func (Signal) isEffect()       {}
func (Delegate) isEffect()     {}
func (Handoff) isEffect()      {}
func (Log) isEffect()          {}
func (Custom) isEffect()       {}
