package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// events converts domain.Transitions into looplab/fsm EventDesc format.
// It consolidates transitions with the same trigger+destination into a
// single EventDesc with multiple source states (e.g., TriggerCancel from
// "pending" and "approved" both go to "cancelled").
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		trigger string
		dst     string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.Transitions {
		k := key{trigger: string(t.Trigger), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.trigger,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the request's current state. This is necessary because looplab/fsm is
// stateful (it tracks the current state internally).
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the given trigger is valid from the current status and
// returns the destination status. Returns a domain.TransitionError if the
// transition is not allowed.
//
// looplab/fsm reports a NoTransitionError when a matched event keeps the
// machine in the same state. That is exactly the idempotent re-approve
// case (approved → approved), so it is treated as success.
func (v *Validator) Apply(ctx context.Context, current domain.Status, trigger domain.Trigger) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(trigger)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		if errors.As(err, &invalidEvent) {
			return "", &domain.TransitionError{
				Trigger: trigger,
				Current: current,
			}
		}
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return current, nil
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
