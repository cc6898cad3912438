package domain

// Role is the account role of an authenticated actor, resolved by the
// identity gateway. The core never parses credentials.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
	RoleSupport  Role = "support"
)

// Actor is the caller of an operation, as supplied by the identity
// collaborator.
type Actor struct {
	ID    string
	Role  Role
	Name  string
	Email string
	Phone string
}

// Elevated reports whether the actor may act on any request regardless of
// ownership.
func (a Actor) Elevated() bool {
	return a.Role == RoleAdmin || a.Role == RoleSupport
}

// Perspective is the role-dependent view used to shape a returned record.
type Perspective string

const (
	PerspectiveRequester Perspective = "requester"
	PerspectiveOwner     Perspective = "owner"
	PerspectiveAdmin     Perspective = "admin"
)

// PerspectiveFor resolves which projection an actor gets for a record.
// The boolean is false when the actor is neither party nor elevated; such
// an actor must never see the record at all.
func PerspectiveFor(actor Actor, r Request) (Perspective, bool) {
	switch {
	case actor.Elevated():
		return PerspectiveAdmin, true
	case actor.ID == r.RequesterID:
		return PerspectiveRequester, true
	case actor.ID == r.OwnerID:
		return PerspectiveOwner, true
	default:
		return "", false
	}
}

// ContactCard is the denormalized contact info disclosed by a projection.
type ContactCard struct {
	Name  string
	Email string
	Phone string
}

// Empty reports whether the card carries no contact channel.
func (c ContactCard) Empty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == ""
}
