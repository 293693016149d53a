package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowpilot-io/durable/pkg/api"
)

// registry is the static mapping from workflow-type and activity names to
// registered handlers. Registration happens before workers start; dispatching
// an unregistered name fails fast with api.ErrUnknownActivity /
// api.ErrUnknownWorkflow.
type registry struct {
	mu         sync.RWMutex
	workflows  map[string]api.WorkflowFunc
	activities map[string]activityRegistration
}

type activityRegistration struct {
	fn        api.ActivityFunc
	timeout   time.Duration
	retry     api.RetryPolicy
	lockClass string
}

func newRegistry() *registry {
	return &registry{
		workflows:  make(map[string]api.WorkflowFunc),
		activities: make(map[string]activityRegistration),
	}
}

func (r *registry) registerWorkflow(name string, fn api.WorkflowFunc) error {
	if name == "" {
		return errors.New("workflow name is required")
	}
	if fn == nil {
		return fmt.Errorf("workflow %q has nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[name]; exists {
		return fmt.Errorf("workflow already registered: %s", name)
	}
	r.workflows[name] = fn
	return nil
}

func (r *registry) registerActivity(name string, fn api.ActivityFunc, opts *api.ActivityOptions) error {
	if name == "" {
		return errors.New("activity name is required")
	}
	if fn == nil {
		return fmt.Errorf("activity %q has nil function", name)
	}

	reg := activityRegistration{
		fn:      fn,
		timeout: api.DefaultActivityTimeout,
		retry:   api.DefaultRetryPolicy(),
	}
	if opts != nil {
		if opts.Timeout > 0 {
			reg.timeout = opts.Timeout
		}
		if opts.Retry != nil {
			reg.retry = *opts.Retry
		}
		reg.lockClass = opts.LockClass
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity already registered: %s", name)
	}
	r.activities[name] = reg
	return nil
}

func (r *registry) workflow(name string) (api.WorkflowFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.workflows[name]
	return fn, ok
}

func (r *registry) activity(name string) (activityRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.activities[name]
	return reg, ok
}
