package orchestration

import (
	"maps"

	"github.com/jinzhu/copier"
)

// ConversationContext accumulates fact-name → value pairs across the stages
// of one turn. It is owned exclusively by the in-flight orchestration run;
// no other goroutine may read or mutate it while a turn is active. Stages
// receive copies via Snapshot.
type ConversationContext struct {
	facts map[string]string
}

// NewConversationContext creates an empty conversation context.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{facts: map[string]string{}}
}

// Set records a single fact, overwriting any previous value.
func (c *ConversationContext) Set(name, value string) {
	c.facts[name] = value
}

// Merge appends the given facts to the context.
func (c *ConversationContext) Merge(facts map[string]string) {
	maps.Copy(c.facts, facts)
}

// Get returns a fact value and whether it is present.
func (c *ConversationContext) Get(name string) (string, bool) {
	value, ok := c.facts[name]
	return value, ok
}

// Len returns the number of accumulated facts.
func (c *ConversationContext) Len() int {
	return len(c.facts)
}

// Snapshot returns an independent copy of the accumulated facts, safe to
// hand to a stage invocation.
func (c *ConversationContext) Snapshot() map[string]string {
	snapshot := map[string]string{}
	if err := copier.Copy(&snapshot, c.facts); err != nil {
		// copier only fails on incompatible shapes; fall back to a plain copy
		maps.Copy(snapshot, c.facts)
	}
	return snapshot
}
