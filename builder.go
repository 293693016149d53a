package durable

import "fmt"

// RegistrySet collects workflow and activity registrations so an application
// can declare its process catalog in one place and apply it to any engine:
//
//	set := durable.NewRegistrySet().
//	    Workflow("diagnose", incident.Diagnose).
//	    Activity("decide-action", incident.DecideAction, nil).
//	    ActivityWithOptions("speak-alert", incident.SpeakAlert, durable.ActivityOptions{
//	        LockClass: "voice",
//	    })
//
//	if err := set.Apply(engine); err != nil {
//	    log.Fatal(err)
//	}
type RegistrySet struct {
	workflows  []workflowEntry
	activities []activityEntry
}

type workflowEntry struct {
	name string
	fn   WorkflowFunc
}

type activityEntry struct {
	name string
	fn   ActivityFunc
	opts *ActivityOptions
}

// NewRegistrySet creates an empty RegistrySet.
func NewRegistrySet() *RegistrySet {
	return &RegistrySet{}
}

// Workflow adds a workflow registration.
func (s *RegistrySet) Workflow(name string, fn WorkflowFunc) *RegistrySet {
	if name == "" {
		panic("durable: workflow name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("durable: workflow %q has nil function", name))
	}
	s.workflows = append(s.workflows, workflowEntry{name: name, fn: fn})
	return s
}

// Activity adds an activity registration with default options.
func (s *RegistrySet) Activity(name string, fn ActivityFunc, opts *ActivityOptions) *RegistrySet {
	if name == "" {
		panic("durable: activity name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("durable: activity %q has nil function", name))
	}
	s.activities = append(s.activities, activityEntry{name: name, fn: fn, opts: opts})
	return s
}

// ActivityWithOptions adds an activity registration with the given options.
func (s *RegistrySet) ActivityWithOptions(name string, fn ActivityFunc, opts ActivityOptions) *RegistrySet {
	// Make a copy so callers can mutate their options after the call
	// without affecting the stored registration.
	o := opts
	return s.Activity(name, fn, &o)
}

// Apply registers everything in the set on the given engine. Registration
// happens before workers start, so a failure here fails startup fast.
func (s *RegistrySet) Apply(eng Engine) error {
	for _, w := range s.workflows {
		if err := eng.RegisterWorkflow(w.name, w.fn); err != nil {
			return err
		}
	}
	for _, a := range s.activities {
		if err := eng.RegisterActivity(a.name, a.fn, a.opts); err != nil {
			return err
		}
	}
	return nil
}

// MustApply is like Apply but panics on error.
// Useful for initialization in main().
func (s *RegistrySet) MustApply(eng Engine) {
	if err := s.Apply(eng); err != nil {
		panic(err)
	}
}
