package hooks

import "context"

// Observer intercepts a hook Point and may return an Action to influence the
// loop's next step. Returning nil is equivalent to returning Continue.
type Observer interface {
	OnHook(ctx context.Context, hc Context) (Action, error)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, hc Context) (Action, error)

// OnHook calls f.
func (f ObserverFunc) OnHook(ctx context.Context, hc Context) (Action, error) { return f(ctx, hc) }

// Chain is an ordered list of Observers invoked for every hook Point. The
// loop calls Invoke once per Point; the first non-Continue, Point-valid
// Action returned by an observer short-circuits the remaining observers in
// that invocation, mirroring the spec's single-observer-wins model for
// interception points while still letting every observer see every event
// point in registration order.
type Chain struct {
	observers []Observer
}

// Add appends an observer to the chain.
func (c *Chain) Add(o Observer) {
	c.observers = append(c.observers, o)
}

// Invoke calls every observer in registration order. Observer errors are
// advisory: they are collected and returned alongside the result (the
// caller is expected to log them) but never stop the chain — only a
// Point-valid, non-Continue Action does. An Action the loop does not
// recognize as valid at hc.Point is treated as Continue and evaluation
// proceeds to the next observer.
func (c *Chain) Invoke(ctx context.Context, hc Context) (Action, error) {
	var firstErr error
	for _, o := range c.observers {
		action, err := o.OnHook(ctx, hc)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if action == nil {
			continue
		}
		if !ValidAt(hc.Point, action) {
			continue
		}
		if _, isContinue := action.(ContinueAction); isContinue {
			continue
		}
		return action, firstErr
	}
	return Continue, firstErr
}
