package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// ActorParams carries the authenticated caller's identity, injected as
// headers by the identity gateway. The service never parses credentials.
type ActorParams struct {
	ActorID    string `header:"X-Actor-Id" doc:"Authenticated user ID"`
	ActorRole  string `header:"X-Actor-Role" doc:"Account role" enum:"tenant,landlord,admin,support"`
	ActorName  string `header:"X-Actor-Name" required:"false" doc:"Display name"`
	ActorEmail string `header:"X-Actor-Email" required:"false" doc:"Contact email"`
	ActorPhone string `header:"X-Actor-Phone" required:"false" doc:"Contact phone"`
}

func (p ActorParams) actor() (domain.Actor, error) {
	if p.ActorID == "" || p.ActorRole == "" {
		return domain.Actor{}, huma.Error401Unauthorized("actor identity headers missing")
	}
	return domain.Actor{
		ID:    p.ActorID,
		Role:  domain.Role(p.ActorRole),
		Name:  p.ActorName,
		Email: p.ActorEmail,
		Phone: p.ActorPhone,
	}, nil
}

// ContactResponse is a disclosed contact card.
type ContactResponse struct {
	Name  string `json:"name,omitempty" doc:"Display name"`
	Email string `json:"email,omitempty" doc:"Contact email"`
	Phone string `json:"phone,omitempty" doc:"Contact phone"`
}

// RequestResponse is the API representation of a request, already shaped
// for the caller's perspective.
type RequestResponse struct {
	ID          string `json:"id" doc:"Unique identifier"`
	Kind        string `json:"kind" doc:"Request kind" enum:"stay_booking,viewing_appointment"`
	ResourceID  string `json:"resource_id" doc:"Apartment ID"`
	RequesterID string `json:"requester_id" doc:"Requesting user ID"`
	OwnerID     string `json:"owner_id" doc:"Apartment owner ID"`
	Status      string `json:"status" doc:"Lifecycle state"`
	Perspective string `json:"perspective" doc:"Viewer perspective this record is shaped for"`

	StartDate  string `json:"start_date,omitempty" doc:"Stay check-in (inclusive)"`
	EndDate    string `json:"end_date,omitempty" doc:"Stay check-out (exclusive)"`
	GuestCount int    `json:"guest_count,omitempty" doc:"Number of guests"`
	Message    string `json:"message,omitempty" doc:"Message to the owner"`

	RequestedDate    string   `json:"requested_date,omitempty" doc:"Requested viewing date"`
	AlternativeDates []string `json:"alternative_dates,omitempty" doc:"Alternative viewing dates"`
	ConfirmedDate    string   `json:"confirmed_date,omitempty" doc:"Owner-confirmed viewing date"`
	PaymentStatus    string   `json:"payment_status,omitempty" doc:"Viewing fee state"`
	FeeAmount        string   `json:"fee_amount,omitempty" doc:"Viewing fee"`

	ResponseNote string `json:"response_note,omitempty" doc:"Owner's response note"`
	ResponseAt   string `json:"response_at,omitempty" doc:"Owner response timestamp"`

	CancellationReason string `json:"cancellation_reason,omitempty" doc:"Why the request was cancelled"`
	CancelledAt        string `json:"cancelled_at,omitempty" doc:"Cancellation timestamp"`
	CancelledBy        string `json:"cancelled_by,omitempty" doc:"Who cancelled"`

	RequesterContact *ContactResponse `json:"requester_contact,omitempty" doc:"Requester contact, when disclosed"`
	OwnerContact     *ContactResponse `json:"owner_contact,omitempty" doc:"Owner contact, when disclosed"`

	CreatedAt string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toRequestResponse(v domain.View) RequestResponse {
	resp := RequestResponse{
		ID:                 v.ID,
		Kind:               string(v.Kind),
		ResourceID:         v.ResourceID,
		RequesterID:        v.RequesterID,
		OwnerID:            v.OwnerID,
		Status:             string(v.Status),
		Perspective:        string(v.Perspective),
		GuestCount:         v.GuestCount,
		Message:            v.Message,
		PaymentStatus:      string(v.PaymentStatus),
		ResponseNote:       v.ResponseNote,
		CancellationReason: v.CancellationReason,
		CancelledBy:        v.CancelledBy,
		CreatedAt:          v.CreatedAt.Format(timeFormat),
		UpdatedAt:          v.UpdatedAt.Format(timeFormat),
	}

	if !v.StartDate.IsZero() {
		resp.StartDate = v.StartDate.Format(timeFormat)
	}
	if !v.EndDate.IsZero() {
		resp.EndDate = v.EndDate.Format(timeFormat)
	}
	if !v.RequestedDate.IsZero() {
		resp.RequestedDate = v.RequestedDate.Format(timeFormat)
	}
	for _, d := range v.AlternativeDates {
		resp.AlternativeDates = append(resp.AlternativeDates, d.Format(timeFormat))
	}
	if v.ConfirmedDate != nil {
		resp.ConfirmedDate = v.ConfirmedDate.Format(timeFormat)
	}
	if v.ResponseAt != nil {
		resp.ResponseAt = v.ResponseAt.Format(timeFormat)
	}
	if v.CancelledAt != nil {
		resp.CancelledAt = v.CancelledAt.Format(timeFormat)
	}
	if v.Kind == domain.KindViewingAppointment {
		resp.FeeAmount = v.FeeAmount.StringFixed(2)
	}
	if v.RequesterContact != nil {
		resp.RequesterContact = &ContactResponse{
			Name:  v.RequesterContact.Name,
			Email: v.RequesterContact.Email,
			Phone: v.RequesterContact.Phone,
		}
	}
	if v.OwnerContact != nil {
		resp.OwnerContact = &ContactResponse{
			Name:  v.OwnerContact.Name,
			Email: v.OwnerContact.Email,
			Phone: v.OwnerContact.Phone,
		}
	}

	return resp
}

// --- Register resource ---

type RegisterResourceInput struct {
	ActorParams
	Body struct {
		Title string `json:"title" minLength:"1" maxLength:"255" doc:"Listing title"`
	}
}

type RegisterResourceOutput struct {
	Body struct {
		ID      string `json:"id" doc:"Resource ID"`
		OwnerID string `json:"owner_id" doc:"Owner user ID"`
		Title   string `json:"title" doc:"Listing title"`
	}
}

// --- Create stay booking ---

type CreateStayBookingInput struct {
	ActorParams
	Body struct {
		ResourceID string    `json:"resource_id" minLength:"1" doc:"Apartment to book"`
		StartDate  time.Time `json:"start_date" doc:"Check-in (inclusive)"`
		EndDate    time.Time `json:"end_date" doc:"Check-out (exclusive)"`
		GuestCount int       `json:"guest_count,omitempty" minimum:"0" maximum:"16" doc:"Number of guests (default 1)"`
		Message    string    `json:"message,omitempty" maxLength:"2000" doc:"Message to the owner"`
	}
}

type CreateStayBookingOutput struct {
	Body RequestResponse
}

// --- Create viewing appointment ---

type CreateViewingAppointmentInput struct {
	ActorParams
	Body struct {
		ResourceID       string      `json:"resource_id" minLength:"1" doc:"Apartment to view"`
		RequestedDate    time.Time   `json:"requested_date" doc:"Preferred viewing date"`
		AlternativeDates []time.Time `json:"alternative_dates,omitempty" maxItems:"2" doc:"Up to two alternative dates"`
		Message          string      `json:"message,omitempty" maxLength:"2000" doc:"Message to the owner"`
		FeeAmount        string      `json:"fee_amount,omitempty" doc:"Viewing fee (defaults when empty)"`
	}
}

type CreateViewingAppointmentOutput struct {
	Body RequestResponse
}

// --- Get request ---

type GetRequestInput struct {
	ActorParams
	ID string `path:"id" doc:"Request ID"`
}

type GetRequestOutput struct {
	Body RequestResponse
}

// --- List requests ---

type ListRequestsInput struct {
	ActorParams
	Scope  string `query:"scope" doc:"Which side to list" enum:"requester,owner"`
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Kind   string `query:"kind" required:"false" doc:"Filter by kind"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListRequestsOutput struct {
	Body struct {
		Requests []RequestResponse `json:"requests" doc:"One page of requests"`
		Meta     struct {
			Total    int            `json:"total" doc:"Total matches before pagination"`
			ByStatus map[string]int `json:"by_status" doc:"Matches per lifecycle state"`
		} `json:"meta"`
	}
}

// --- Transition ---

type TransitionInput struct {
	ActorParams
	ID   string `path:"id" doc:"Request ID"`
	Body struct {
		Trigger       string     `json:"trigger" doc:"Lifecycle trigger" enum:"approve,reject,complete,cancel"`
		Note          string     `json:"note,omitempty" maxLength:"2000" doc:"Response note (approve/reject)"`
		Reason        string     `json:"reason,omitempty" maxLength:"2000" doc:"Cancellation reason"`
		ConfirmedDate *time.Time `json:"confirmed_date,omitempty" doc:"Confirmed viewing date (approve)"`
	}
}

type TransitionOutput struct {
	Body RequestResponse
}

// --- Record payment ---

type RecordPaymentInput struct {
	ActorParams
	ID string `path:"id" doc:"Viewing request ID"`
}

type RecordPaymentOutput struct {
	Body RequestResponse
}

// Register adds all request API routes to the Huma API.
func Register(api huma.API, svc *app.RequestService) {
	huma.Register(api, huma.Operation{
		OperationID: "register-resource",
		Method:      http.MethodPost,
		Path:        "/api/v1/resources",
		Summary:     "List an apartment",
		Tags:        []string{"Resources"},
	}, func(ctx context.Context, input *RegisterResourceInput) (*RegisterResourceOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		res, err := svc.RegisterResource(ctx, actor, input.Body.Title)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &RegisterResourceOutput{}
		out.Body.ID = res.ID
		out.Body.OwnerID = res.OwnerID
		out.Body.Title = res.Title
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-booking-request",
		Method:      http.MethodPost,
		Path:        "/api/v1/booking-requests",
		Summary:     "Request a stay booking",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *CreateStayBookingInput) (*CreateStayBookingOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		v, err := svc.CreateStayBooking(ctx, actor, app.CreateStayBookingInput{
			ResourceID: input.Body.ResourceID,
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
			GuestCount: input.Body.GuestCount,
			Message:    input.Body.Message,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateStayBookingOutput{Body: toRequestResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-viewing-request",
		Method:      http.MethodPost,
		Path:        "/api/v1/viewing-requests",
		Summary:     "Request a viewing appointment",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *CreateViewingAppointmentInput) (*CreateViewingAppointmentOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		var fee decimal.Decimal
		if input.Body.FeeAmount != "" {
			fee, err = decimal.NewFromString(input.Body.FeeAmount)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity("invalid fee_amount: " + err.Error())
			}
		}
		v, err := svc.CreateViewingAppointment(ctx, actor, app.CreateViewingAppointmentInput{
			ResourceID:       input.Body.ResourceID,
			RequestedDate:    input.Body.RequestedDate,
			AlternativeDates: input.Body.AlternativeDates,
			Message:          input.Body.Message,
			FeeAmount:        fee,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateViewingAppointmentOutput{Body: toRequestResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/api/v1/requests/{id}",
		Summary:     "Get a request by ID",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *GetRequestInput) (*GetRequestOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		v, err := svc.Get(ctx, actor, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetRequestOutput{Body: toRequestResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/api/v1/requests",
		Summary:     "List the caller's requests",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *ListRequestsInput) (*ListRequestsOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		opts := app.ListOptions{Limit: input.Limit, Offset: input.Offset}
		if input.Status != "" {
			s := domain.Status(input.Status)
			opts.Status = &s
		}
		if input.Kind != "" {
			k := domain.Kind(input.Kind)
			opts.Kind = &k
		}

		listing, err := svc.List(ctx, actor, app.Scope(input.Scope), opts)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ListRequestsOutput{}
		out.Body.Requests = make([]RequestResponse, len(listing.Requests))
		for i, v := range listing.Requests {
			out.Body.Requests[i] = toRequestResponse(v)
		}
		out.Body.Meta.Total = listing.Meta.Total
		out.Body.Meta.ByStatus = make(map[string]int, len(listing.Meta.ByStatus))
		for status, n := range listing.Meta.ByStatus {
			out.Body.Meta.ByStatus[string(status)] = n
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-request",
		Method:      http.MethodPost,
		Path:        "/api/v1/requests/{id}/events",
		Summary:     "Trigger a lifecycle transition",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		v, err := svc.Transition(ctx, actor, input.ID, domain.Trigger(input.Body.Trigger), app.TransitionInput{
			Note:          input.Body.Note,
			Reason:        input.Body.Reason,
			ConfirmedDate: input.Body.ConfirmedDate,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TransitionOutput{Body: toRequestResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-payment",
		Method:      http.MethodPost,
		Path:        "/api/v1/viewing-requests/{id}/payment",
		Summary:     "Mark the viewing fee as paid",
		Tags:        []string{"Requests"},
	}, func(ctx context.Context, input *RecordPaymentInput) (*RecordPaymentOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}
		v, err := svc.RecordPayment(ctx, actor, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordPaymentOutput{Body: toRequestResponse(v)}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrRequestNotFound) {
		return huma.Error404NotFound("request not found")
	}
	if errors.Is(err, domain.ErrResourceNotFound) {
		return huma.Error404NotFound("resource not found")
	}
	if errors.Is(err, domain.ErrVersionConflict) {
		return huma.Error409Conflict("request was modified concurrently, retry")
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return huma.Error422UnprocessableEntity(validationErr.Error())
	}

	var selfErr *domain.SelfRequestError
	if errors.As(err, &selfErr) {
		return huma.Error422UnprocessableEntity(selfErr.Error())
	}

	var conflictErr *domain.SchedulingConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var authErr *domain.AuthorizationError
	if errors.As(err, &authErr) {
		return huma.Error403Forbidden(authErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
