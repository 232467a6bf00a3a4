package convert

import "context"

// Compensations collects compensating actions accumulated during one
// conversion attempt. On abort the actions run in reverse order so the
// attempt leaves no partial state behind (e.g. identity mappings created
// before a late rejection gate).
type Compensations struct {
	actions []func(context.Context) error
}

// Add appends a compensating action.
func (c *Compensations) Add(action func(context.Context) error) {
	c.actions = append(c.actions, action)
}

// Run executes all actions in reverse order and returns the first error
// encountered. Remaining actions still run; compensation is best-effort.
func (c *Compensations) Run(ctx context.Context) error {
	var firstErr error
	for i := len(c.actions) - 1; i >= 0; i-- {
		if err := c.actions[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.actions = nil
	return firstErr
}
