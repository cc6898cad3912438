package domain

import "context"

// RequestRepository defines the persistence contract for requests. Update
// takes the version the caller read; implementations must reject the write
// with ErrVersionConflict when the stored version differs.
type RequestRepository interface {
	Insert(ctx context.Context, r Request) error
	GetByID(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, r Request, expectedVersion int64) (Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, error)
}

// ListFilter holds optional criteria for listing requests. Zero-valued
// fields are ignored.
type ListFilter struct {
	ResourceID  string
	RequesterID string
	OwnerID     string
	Kind        *Kind
	Statuses    []Status
	Limit       int
	Offset      int
}

// Resource is the slice of an apartment the core needs: its identity and
// its owner, resolved at creation time.
type Resource struct {
	ID      string
	OwnerID string
	Title   string
}

// ResourceDirectory resolves apartments. Registration exists so owners can
// list an apartment before anyone requests it.
type ResourceDirectory interface {
	Register(ctx context.Context, res Resource) error
	GetByID(ctx context.Context, id string) (Resource, error)
}

// IdentityDirectory resolves contact details for a user id. Record is
// best-effort bookkeeping fed from authenticated actors; GetContact
// returns an empty card for unknown ids.
type IdentityDirectory interface {
	Record(ctx context.Context, userID string, card ContactCard) error
	GetContact(ctx context.Context, userID string) (ContactCard, error)
}

// TransitionValidator is the single authority on legal status transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, trigger Trigger) (Status, error)
}

// EventPublisher defines the contract for emitting domain events after a
// successful mutation. Delivery is fire-and-forget: a publish failure must
// never roll back the transition.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, r Request) error
}
