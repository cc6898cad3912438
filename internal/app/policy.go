package app

import "github.com/neomorfeo/bookiq/internal/domain"

// AuthorizationPolicy decides, for an (actor, request, trigger) triple,
// whether the actor may fire the trigger. Elevated roles may do anything;
// the owner may respond to and close out requests on their apartment; the
// requester may only withdraw their own request.
type AuthorizationPolicy struct{}

// CanPerform reports whether the actor is allowed to fire trigger on r.
func (AuthorizationPolicy) CanPerform(actor domain.Actor, r domain.Request, trigger domain.Trigger) bool {
	if actor.Elevated() {
		return true
	}

	switch actor.ID {
	case r.OwnerID:
		switch trigger {
		case domain.TriggerApprove, domain.TriggerReject, domain.TriggerComplete, domain.TriggerCancel:
			return true
		}
	case r.RequesterID:
		return trigger == domain.TriggerCancel
	}

	return false
}
