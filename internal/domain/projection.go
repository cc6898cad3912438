package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// View is a request shaped for one viewer. The same stored record projects
// differently for the requester, the owner, and an admin; this is the only
// place those redaction rules live, so no call site can reintroduce a leak
// by copying fields ad hoc.
type View struct {
	ID          string
	Kind        Kind
	ResourceID  string
	RequesterID string
	OwnerID     string
	Status      Status
	Perspective Perspective

	StartDate  time.Time
	EndDate    time.Time
	GuestCount int
	Message    string

	RequestedDate    time.Time
	AlternativeDates []time.Time
	ConfirmedDate    *time.Time
	PaymentStatus    PaymentStatus
	FeeAmount        decimal.Decimal

	// ResponseNote is addressed to the requester, so every perspective
	// that sees the record sees it.
	ResponseNote string
	ResponseAt   *time.Time

	CancellationReason string
	CancelledAt        *time.Time
	CancelledBy        string

	// Contacts are disclosed per the rules in Project; nil means redacted.
	RequesterContact *ContactCard
	OwnerContact     *ContactCard

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project shapes a record for a viewer perspective. ownerContact is the
// owner's card as resolved by the identity directory; the requester's card
// is denormalized on the record itself.
//
// Disclosure rules:
//   - The owner sees the requester's contact unconditionally for viewing
//     appointments (the visit has to be arranged), but only from approval
//     onward for stay bookings.
//   - The requester sees the owner's contact only from approval onward.
//   - Admin sees both, unredacted.
func Project(r Request, p Perspective, ownerContact ContactCard) View {
	v := View{
		ID:                 r.ID,
		Kind:               r.Kind,
		ResourceID:         r.ResourceID,
		RequesterID:        r.RequesterID,
		OwnerID:            r.OwnerID,
		Status:             r.Status,
		Perspective:        p,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		GuestCount:         r.GuestCount,
		Message:            r.Message,
		RequestedDate:      r.RequestedDate,
		AlternativeDates:   r.AlternativeDates,
		ConfirmedDate:      r.ConfirmedDate,
		PaymentStatus:      r.PaymentStatus,
		FeeAmount:          r.FeeAmount,
		ResponseNote:       r.ResponseNote,
		ResponseAt:         r.ResponseAt,
		CancellationReason: r.CancellationReason,
		CancelledAt:        r.CancelledAt,
		CancelledBy:        r.CancelledBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}

	requesterCard := ContactCard{
		Name:  r.RequesterName,
		Email: r.RequesterEmail,
		Phone: r.RequesterPhone,
	}
	disclosed := r.Status == StatusApproved || r.Status == StatusCompleted

	switch p {
	case PerspectiveAdmin:
		v.RequesterContact = &requesterCard
		v.OwnerContact = &ownerContact
	case PerspectiveOwner:
		if r.Kind == KindViewingAppointment || disclosed {
			v.RequesterContact = &requesterCard
		}
	case PerspectiveRequester:
		if disclosed {
			v.OwnerContact = &ownerContact
		}
	}

	return v
}
