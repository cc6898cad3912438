package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses are the states in which a stay booking claims its dates.
// A pending booking already counts, so two pending requests for the same
// interval can never both be approved later.
var ActiveStatuses = []Status{StatusPending, StatusApproved, StatusCompleted}

// ClaimedStatuses are the states in which a stay booking definitively
// holds its dates. Used at approval time, where a merely pending rival
// must not block the first approval.
var ClaimedStatuses = []Status{StatusApproved, StatusCompleted}

// Trigger represents an action that moves a request through its lifecycle.
type Trigger string

const (
	TriggerApprove  Trigger = "approve"
	TriggerReject   Trigger = "reject"
	TriggerComplete Trigger = "complete"
	TriggerCancel   Trigger = "cancel"

	// Pseudo-triggers used in authorization errors only; they never
	// appear in Transitions.
	TriggerView Trigger = "view"
	TriggerPay  Trigger = "pay"
)

// Transition defines a valid state change: a trigger moves a request from Src to Dst.
type Transition struct {
	Trigger Trigger
	Src     Status
	Dst     Status
}

// Transitions defines all valid state changes in the request lifecycle,
// for both request kinds. This is domain knowledge consumed by the FSM
// adapter. Re-approving an approved request is legal and idempotent; it
// only refreshes the response note.
var Transitions = []Transition{
	{Trigger: TriggerApprove, Src: StatusPending, Dst: StatusApproved},
	{Trigger: TriggerApprove, Src: StatusApproved, Dst: StatusApproved},
	{Trigger: TriggerReject, Src: StatusPending, Dst: StatusRejected},
	{Trigger: TriggerReject, Src: StatusApproved, Dst: StatusRejected},
	{Trigger: TriggerComplete, Src: StatusApproved, Dst: StatusCompleted},
	{Trigger: TriggerCancel, Src: StatusPending, Dst: StatusCancelled},
	{Trigger: TriggerCancel, Src: StatusApproved, Dst: StatusCancelled},
}

// Kind discriminates the two request variants stored in one record shape.
type Kind string

const (
	KindStayBooking        Kind = "stay_booking"
	KindViewingAppointment Kind = "viewing_appointment"
)

// KindSpec describes how the lifecycle engine treats a request kind.
// Stay bookings claim exclusive use of the apartment and therefore go
// through overlap checking; viewing appointments may overlap freely but
// carry a booking fee.
type KindSpec struct {
	ChecksOverlap bool
	HasPayment    bool
}

// Spec returns the behavior descriptor for the kind.
func (k Kind) Spec() KindSpec {
	switch k {
	case KindStayBooking:
		return KindSpec{ChecksOverlap: true}
	case KindViewingAppointment:
		return KindSpec{HasPayment: true}
	default:
		return KindSpec{}
	}
}

// PaymentStatus tracks the viewing fee for viewing appointments.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// DefaultViewingFee is charged when the requester does not specify one.
var DefaultViewingFee = decimal.NewFromFloat(25.00)

// Request is the core entity: a stay booking or viewing appointment made
// by a requester against an apartment owned by someone else. Identity,
// resource, and stay dates are immutable after creation; only the service
// (via the transition validator) may change the status.
type Request struct {
	ID          string
	Kind        Kind
	ResourceID  string
	RequesterID string
	OwnerID     string
	Status      Status

	// Stay booking fields. StartDate/EndDate form a half-open interval.
	StartDate  time.Time
	EndDate    time.Time
	GuestCount int
	Message    string

	// Viewing appointment fields. The owner confirms one of the offered
	// dates on approval, or overrides with their own.
	RequestedDate    time.Time
	AlternativeDates []time.Time
	ConfirmedDate    *time.Time
	PaymentStatus    PaymentStatus
	FeeAmount        decimal.Decimal

	// Requester contact, denormalized at creation so the owner projection
	// never needs a join against the identity collaborator.
	RequesterName  string
	RequesterEmail string
	RequesterPhone string

	// Owner response, set on approve/reject.
	ResponseNote string
	ResponseAt   *time.Time

	// Cancellation bookkeeping, set only when cancelled.
	CancellationReason string
	CancelledAt        *time.Time
	CancelledBy        string

	// Version guards optimistic repository updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interval returns the half-open stay interval of a booking.
func (r Request) Interval() Interval {
	return Interval{Start: r.StartDate, End: r.EndDate}
}

// NewStayBooking creates a pending stay booking. The caller has already
// validated the interval and resolved the owner.
func NewStayBooking(id, resourceID string, requester Actor, ownerID string, start, end time.Time, guests int, message string) Request {
	now := time.Now().UTC()
	return Request{
		ID:             id,
		Kind:           KindStayBooking,
		ResourceID:     resourceID,
		RequesterID:    requester.ID,
		OwnerID:        ownerID,
		Status:         StatusPending,
		StartDate:      start,
		EndDate:        end,
		GuestCount:     guests,
		Message:        message,
		RequesterName:  requester.Name,
		RequesterEmail: requester.Email,
		RequesterPhone: requester.Phone,
		FeeAmount:      decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewViewingAppointment creates a pending viewing appointment with an
// unpaid fee.
func NewViewingAppointment(id, resourceID string, requester Actor, ownerID string, requested time.Time, alternatives []time.Time, message string, fee decimal.Decimal) Request {
	now := time.Now().UTC()
	return Request{
		ID:               id,
		Kind:             KindViewingAppointment,
		ResourceID:       resourceID,
		RequesterID:      requester.ID,
		OwnerID:          ownerID,
		Status:           StatusPending,
		RequestedDate:    requested,
		AlternativeDates: alternatives,
		PaymentStatus:    PaymentPending,
		FeeAmount:        fee,
		Message:          message,
		RequesterName:    requester.Name,
		RequesterEmail:   requester.Email,
		RequesterPhone:   requester.Phone,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Event identifies a domain event emitted after a successful mutation.
type Event string

const (
	EventRequestCreated   Event = "request_created"
	EventRequestApproved  Event = "request_approved"
	EventRequestRejected  Event = "request_rejected"
	EventRequestCancelled Event = "request_cancelled"
	EventRequestCompleted Event = "request_completed"
)

// EventForTrigger maps a completed transition to the event it publishes.
func EventForTrigger(t Trigger) Event {
	switch t {
	case TriggerApprove:
		return EventRequestApproved
	case TriggerReject:
		return EventRequestRejected
	case TriggerComplete:
		return EventRequestCompleted
	case TriggerCancel:
		return EventRequestCancelled
	default:
		return ""
	}
}
