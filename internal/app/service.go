package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Input bounds. The grace window tolerates clock skew between the caller
// and the server when checking "not in the past".
const (
	pastGraceWindow     = 24 * time.Hour
	maxGuests           = 16
	maxMessageLength    = 2000
	maxAlternativeDates = 2

	// A losing optimistic write is retried against fresh state, which
	// re-runs authorization, the transition table, and the overlap check.
	maxTransitionAttempts = 3
)

// RequestService orchestrates the request lifecycle: validation, overlap
// gating, authorization, state transitions, persistence, and perspective
// projection of results.
type RequestService struct {
	repo       domain.RequestRepository
	resources  domain.ResourceDirectory
	identities domain.IdentityDirectory
	publisher  domain.EventPublisher
	validator  domain.TransitionValidator
	scheduler  *OverlapScheduler
	policy     AuthorizationPolicy
}

// NewRequestService creates a service with the given adapters.
func NewRequestService(
	repo domain.RequestRepository,
	resources domain.ResourceDirectory,
	identities domain.IdentityDirectory,
	publisher domain.EventPublisher,
	validator domain.TransitionValidator,
) *RequestService {
	return &RequestService{
		repo:       repo,
		resources:  resources,
		identities: identities,
		publisher:  publisher,
		validator:  validator,
		scheduler:  NewOverlapScheduler(repo),
	}
}

// CreateStayBookingInput carries the requester-supplied fields of a new
// stay booking. StartDate/EndDate form a half-open interval.
type CreateStayBookingInput struct {
	ResourceID string
	StartDate  time.Time
	EndDate    time.Time
	GuestCount int
	Message    string
}

// CreateViewingAppointmentInput carries the requester-supplied fields of a
// new viewing appointment. A zero FeeAmount falls back to the default fee.
type CreateViewingAppointmentInput struct {
	ResourceID       string
	RequestedDate    time.Time
	AlternativeDates []time.Time
	Message          string
	FeeAmount        decimal.Decimal
}

// TransitionInput carries the optional payload of a lifecycle trigger.
type TransitionInput struct {
	// Note is the owner's response text on approve/reject.
	Note string
	// Reason is the cancellation reason; defaulted when empty.
	Reason string
	// ConfirmedDate lets the owner confirm one of the offered viewing
	// dates or override with their own.
	ConfirmedDate *time.Time
}

// CreateStayBooking validates and persists a pending stay booking. The
// overlap gate includes pending bookings, so duplicate submissions create
// duplicate pending records only when their dates do not collide; the
// scheduler, not idempotency, prevents double acceptance.
func (s *RequestService) CreateStayBooking(ctx context.Context, actor domain.Actor, input CreateStayBookingInput) (domain.View, error) {
	if input.GuestCount == 0 {
		input.GuestCount = 1
	}
	if input.GuestCount < 1 || input.GuestCount > maxGuests {
		return domain.View{}, &domain.ValidationError{Field: "guestCount", Reason: fmt.Sprintf("must be between 1 and %d", maxGuests)}
	}
	if len(input.Message) > maxMessageLength {
		return domain.View{}, &domain.ValidationError{Field: "message", Reason: fmt.Sprintf("must not exceed %d characters", maxMessageLength)}
	}
	stay := domain.Interval{Start: input.StartDate, End: input.EndDate}
	if !stay.Valid() {
		return domain.View{}, &domain.ValidationError{Field: "endDate", Reason: "must be after startDate"}
	}
	if input.StartDate.Before(time.Now().UTC().Add(-pastGraceWindow)) {
		return domain.View{}, &domain.ValidationError{Field: "startDate", Reason: "must not be in the past"}
	}

	res, err := s.resources.GetByID(ctx, input.ResourceID)
	if err != nil {
		return domain.View{}, err
	}
	if actor.ID == res.OwnerID {
		return domain.View{}, &domain.SelfRequestError{ResourceID: res.ID}
	}

	conflictID, err := s.scheduler.Conflict(ctx, res.ID, stay, "", domain.ActiveStatuses)
	if err != nil {
		return domain.View{}, err
	}
	if conflictID != "" {
		return domain.View{}, &domain.SchedulingConflictError{ResourceID: res.ID, ConflictsWith: conflictID}
	}

	r := domain.NewStayBooking(newID(), res.ID, actor, res.OwnerID,
		input.StartDate, input.EndDate, input.GuestCount, input.Message)

	if err := s.repo.Insert(ctx, r); err != nil {
		return domain.View{}, fmt.Errorf("creating booking request: %w", err)
	}

	s.recordIdentity(ctx, actor)
	s.publish(ctx, domain.EventRequestCreated, r)

	return s.projectFor(ctx, actor, r)
}

// CreateViewingAppointment validates and persists a pending viewing
// appointment. Viewings are not exclusive use of the apartment, so no
// overlap gate applies.
func (s *RequestService) CreateViewingAppointment(ctx context.Context, actor domain.Actor, input CreateViewingAppointmentInput) (domain.View, error) {
	if len(input.AlternativeDates) > maxAlternativeDates {
		return domain.View{}, &domain.ValidationError{Field: "alternativeDates", Reason: fmt.Sprintf("at most %d allowed", maxAlternativeDates)}
	}
	if len(input.Message) > maxMessageLength {
		return domain.View{}, &domain.ValidationError{Field: "message", Reason: fmt.Sprintf("must not exceed %d characters", maxMessageLength)}
	}
	if input.RequestedDate.Before(time.Now().UTC().Add(-pastGraceWindow)) {
		return domain.View{}, &domain.ValidationError{Field: "requestedDate", Reason: "must not be in the past"}
	}
	fee := input.FeeAmount
	if fee.IsZero() {
		fee = domain.DefaultViewingFee
	}
	if fee.IsNegative() {
		return domain.View{}, &domain.ValidationError{Field: "feeAmount", Reason: "must not be negative"}
	}

	res, err := s.resources.GetByID(ctx, input.ResourceID)
	if err != nil {
		return domain.View{}, err
	}
	if actor.ID == res.OwnerID {
		return domain.View{}, &domain.SelfRequestError{ResourceID: res.ID}
	}

	r := domain.NewViewingAppointment(newID(), res.ID, actor, res.OwnerID,
		input.RequestedDate, input.AlternativeDates, input.Message, fee)

	if err := s.repo.Insert(ctx, r); err != nil {
		return domain.View{}, fmt.Errorf("creating viewing request: %w", err)
	}

	s.recordIdentity(ctx, actor)
	s.publish(ctx, domain.EventRequestCreated, r)

	return s.projectFor(ctx, actor, r)
}

// Transition applies a lifecycle trigger to a request: authorization
// first, then the transition table, then trigger side effects. A stay
// booking approval re-runs the overlap check excluding the record itself,
// closing the race where two overlapping bookings are approved out of
// order. Lost optimistic writes are retried against fresh state.
func (s *RequestService) Transition(ctx context.Context, actor domain.Actor, requestID string, trigger domain.Trigger, input TransitionInput) (domain.View, error) {
	for attempt := 1; ; attempt++ {
		r, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return domain.View{}, err
		}

		if !s.policy.CanPerform(actor, r, trigger) {
			return domain.View{}, &domain.AuthorizationError{ActorID: actor.ID, Trigger: trigger}
		}

		next, err := s.validator.Apply(ctx, r.Status, trigger)
		if err != nil {
			return domain.View{}, err
		}

		now := time.Now().UTC()
		switch trigger {
		case domain.TriggerApprove:
			if r.Kind.Spec().ChecksOverlap {
				// The winning approval claims the dates; a second
				// overlapping approval must fail here rather than
				// succeed silently.
				conflictID, err := s.scheduler.Conflict(ctx, r.ResourceID, r.Interval(), r.ID, domain.ClaimedStatuses)
				if err != nil {
					return domain.View{}, err
				}
				if conflictID != "" {
					return domain.View{}, &domain.SchedulingConflictError{ResourceID: r.ResourceID, ConflictsWith: conflictID}
				}
			}
			r.ResponseNote = input.Note
			r.ResponseAt = &now
			if r.Kind == domain.KindViewingAppointment {
				if input.ConfirmedDate != nil {
					r.ConfirmedDate = input.ConfirmedDate
				} else if r.ConfirmedDate == nil {
					confirmed := r.RequestedDate
					r.ConfirmedDate = &confirmed
				}
			}

		case domain.TriggerReject:
			r.ResponseNote = input.Note
			r.ResponseAt = &now

		case domain.TriggerCancel:
			reason := input.Reason
			if reason == "" {
				reason = fmt.Sprintf("Cancelled by %s", actor.Role)
			}
			r.CancellationReason = reason
			r.CancelledAt = &now
			r.CancelledBy = actor.ID
			if r.Kind.Spec().HasPayment && r.PaymentStatus == domain.PaymentPaid {
				r.PaymentStatus = domain.PaymentRefunded
			}
		}

		r.Status = next
		r.UpdatedAt = now

		updated, err := s.repo.Update(ctx, r, r.Version)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxTransitionAttempts {
			continue
		}
		if err != nil {
			return domain.View{}, err
		}

		s.recordIdentity(ctx, actor)
		s.publish(ctx, domain.EventForTrigger(trigger), updated)

		return s.projectFor(ctx, actor, updated)
	}
}

// RecordPayment marks the viewing fee of a request as paid. Only the
// requester (or an elevated role) may pay, and only while the request is
// still live.
func (s *RequestService) RecordPayment(ctx context.Context, actor domain.Actor, requestID string) (domain.View, error) {
	r, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return domain.View{}, err
	}

	if !r.Kind.Spec().HasPayment {
		return domain.View{}, &domain.ValidationError{Field: "kind", Reason: "request carries no fee"}
	}
	if actor.ID != r.RequesterID && !actor.Elevated() {
		return domain.View{}, &domain.AuthorizationError{ActorID: actor.ID, Trigger: domain.TriggerPay}
	}
	if r.Status.Terminal() {
		return domain.View{}, &domain.TransitionError{Trigger: domain.TriggerPay, Current: r.Status}
	}
	if r.PaymentStatus != domain.PaymentPending {
		return domain.View{}, &domain.ValidationError{Field: "paymentStatus", Reason: fmt.Sprintf("cannot pay from state %q", r.PaymentStatus)}
	}

	r.PaymentStatus = domain.PaymentPaid
	r.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, r, r.Version)
	if err != nil {
		return domain.View{}, err
	}

	return s.projectFor(ctx, actor, updated)
}

// Get returns a single request projected for the actor. Actors who are
// neither party to the request nor elevated never see it.
func (s *RequestService) Get(ctx context.Context, actor domain.Actor, requestID string) (domain.View, error) {
	r, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return domain.View{}, err
	}
	return s.projectFor(ctx, actor, r)
}

// Scope selects which side of the actor's requests a listing covers.
type Scope string

const (
	ScopeRequester Scope = "requester"
	ScopeOwner     Scope = "owner"
)

// ListOptions narrows and paginates a listing.
type ListOptions struct {
	Status *domain.Status
	Kind   *domain.Kind
	Limit  int
	Offset int
}

// ListMeta aggregates a listing: total matches and per-status counts,
// computed before pagination.
type ListMeta struct {
	Total    int
	ByStatus map[domain.Status]int
}

// Listing is a page of projected requests plus aggregate counts.
type Listing struct {
	Requests []domain.View
	Meta     ListMeta
}

// List returns the actor's requests on one side (as requester or as
// owner), projected per record. The query is always scoped to the actor's
// own id, so no listing can disclose a stranger's records.
func (s *RequestService) List(ctx context.Context, actor domain.Actor, scope Scope, opts ListOptions) (Listing, error) {
	filter := domain.ListFilter{Kind: opts.Kind}
	switch scope {
	case ScopeRequester:
		filter.RequesterID = actor.ID
	case ScopeOwner:
		filter.OwnerID = actor.ID
	default:
		return Listing{}, &domain.ValidationError{Field: "scope", Reason: `must be "requester" or "owner"`}
	}
	if opts.Status != nil {
		filter.Statuses = []domain.Status{*opts.Status}
	}

	// Pagination happens after the aggregate counts: per-actor volumes
	// are small, and the meta must describe all matches, not one page.
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return Listing{}, fmt.Errorf("listing requests: %w", err)
	}

	meta := ListMeta{Total: len(records), ByStatus: make(map[domain.Status]int)}
	for _, r := range records {
		meta.ByStatus[r.Status]++
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			records = nil
		} else {
			records = records[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}

	ownerCards := make(map[string]domain.ContactCard)
	views := make([]domain.View, 0, len(records))
	for _, r := range records {
		card, ok := ownerCards[r.OwnerID]
		if !ok {
			card = s.ownerContact(ctx, r.OwnerID)
			ownerCards[r.OwnerID] = card
		}
		p, visible := domain.PerspectiveFor(actor, r)
		if !visible {
			// Cannot happen for actor-scoped filters; skip defensively
			// rather than leak.
			continue
		}
		views = append(views, domain.Project(r, p, card))
	}

	return Listing{Requests: views, Meta: meta}, nil
}

// RegisterResource lists an apartment with the calling actor as owner, so
// later creations can resolve ownership and reject self-requests.
func (s *RequestService) RegisterResource(ctx context.Context, actor domain.Actor, title string) (domain.Resource, error) {
	if title == "" {
		return domain.Resource{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	res := domain.Resource{ID: newID(), OwnerID: actor.ID, Title: title}
	if err := s.resources.Register(ctx, res); err != nil {
		return domain.Resource{}, fmt.Errorf("registering resource: %w", err)
	}

	s.recordIdentity(ctx, actor)

	return res, nil
}

// projectFor shapes a record for the actor, resolving the owner's contact
// card through the identity directory.
func (s *RequestService) projectFor(ctx context.Context, actor domain.Actor, r domain.Request) (domain.View, error) {
	p, ok := domain.PerspectiveFor(actor, r)
	if !ok {
		return domain.View{}, &domain.AuthorizationError{ActorID: actor.ID, Trigger: domain.TriggerView}
	}
	return domain.Project(r, p, s.ownerContact(ctx, r.OwnerID)), nil
}

// ownerContact resolves the owner's card, degrading to an empty card when
// the directory has no entry. Redaction still applies downstream.
func (s *RequestService) ownerContact(ctx context.Context, ownerID string) domain.ContactCard {
	card, err := s.identities.GetContact(ctx, ownerID)
	if err != nil {
		slog.WarnContext(ctx, "resolving owner contact failed", "owner_id", ownerID, "error", err)
		return domain.ContactCard{}
	}
	return card
}

// recordIdentity feeds the identity directory from the authenticated
// actor. Best-effort: directory failures never fail the operation.
func (s *RequestService) recordIdentity(ctx context.Context, actor domain.Actor) {
	card := domain.ContactCard{Name: actor.Name, Email: actor.Email, Phone: actor.Phone}
	if card.Empty() {
		return
	}
	if err := s.identities.Record(ctx, actor.ID, card); err != nil {
		slog.WarnContext(ctx, "recording actor identity failed", "actor_id", actor.ID, "error", err)
	}
}

// publish emits a domain event. Fire-and-forget: a publish failure is
// logged, never propagated, so notification outages cannot roll back a
// committed transition.
func (s *RequestService) publish(ctx context.Context, event domain.Event, r domain.Request) {
	if err := s.publisher.Publish(ctx, event, r); err != nil {
		slog.WarnContext(ctx, "publishing event failed", "event", event, "request_id", r.ID, "error", err)
	}
}
