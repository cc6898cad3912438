package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/domain"
	"github.com/shopspring/decimal"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var testRequester = domain.Actor{
	ID:    "u-1",
	Role:  domain.RoleTenant,
	Name:  "Anna",
	Email: "anna@example.com",
	Phone: "+4915112345",
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustInsert(t *testing.T, store *sqlite.Store, r domain.Request) {
	t.Helper()
	if err := store.Insert(context.Background(), r); err != nil {
		t.Fatalf("mustInsert failed: %v", err)
	}
}

func TestInsert_And_GetByID_StayBooking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "looking forward")
	mustInsert(t, store, r)

	got, err := store.GetByID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Kind != domain.KindStayBooking {
		t.Errorf("Kind = %q, want stay_booking", got.Kind)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if !got.StartDate.Equal(r.StartDate) || !got.EndDate.Equal(r.EndDate) {
		t.Errorf("interval = %v..%v, want %v..%v", got.StartDate, got.EndDate, r.StartDate, r.EndDate)
	}
	if got.GuestCount != 2 {
		t.Errorf("GuestCount = %d, want 2", got.GuestCount)
	}
	if got.Message != "looking forward" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.RequesterEmail != testRequester.Email {
		t.Errorf("RequesterEmail = %q, want %q", got.RequesterEmail, testRequester.Email)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.ConfirmedDate != nil || got.ResponseAt != nil || got.CancelledAt != nil {
		t.Error("optional timestamps should round-trip as nil")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestInsert_And_GetByID_ViewingAppointment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fee := decimal.NewFromFloat(37.50)
	alternatives := []time.Time{day(2027, 7, 2), day(2027, 7, 3)}
	r := domain.NewViewingAppointment("req-1", "apt-1", testRequester, "u-2",
		day(2027, 7, 1), alternatives, "", fee)
	mustInsert(t, store, r)

	got, err := store.GetByID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Kind != domain.KindViewingAppointment {
		t.Errorf("Kind = %q, want viewing_appointment", got.Kind)
	}
	if got.PaymentStatus != domain.PaymentPending {
		t.Errorf("PaymentStatus = %q, want pending", got.PaymentStatus)
	}
	if !got.FeeAmount.Equal(fee) {
		t.Errorf("FeeAmount = %s, want %s", got.FeeAmount, fee)
	}
	if len(got.AlternativeDates) != 2 {
		t.Fatalf("got %d alternative dates, want 2", len(got.AlternativeDates))
	}
	for i := range alternatives {
		if !got.AlternativeDates[i].Equal(alternatives[i]) {
			t.Errorf("AlternativeDates[%d] = %v, want %v", i, got.AlternativeDates[i], alternatives[i])
		}
	}
}

func TestInsert_NormalizesOffsetTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// RFC3339 input arrives with whatever offset the client sent.
	berlin := time.FixedZone("CEST", 2*60*60)
	start := time.Date(2027, 6, 1, 10, 0, 0, 0, berlin) // 08:00 UTC
	end := time.Date(2027, 6, 10, 10, 0, 0, 0, berlin)

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		start, end, 2, "")
	mustInsert(t, store, r)

	got, err := store.GetByID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	wantStart := time.Date(2027, 6, 1, 8, 0, 0, 0, time.UTC)
	if !got.StartDate.Equal(wantStart) {
		t.Errorf("StartDate = %v, want %v (instant must survive the round trip)", got.StartDate, wantStart)
	}
	if !got.StartDate.Equal(start) || !got.EndDate.Equal(end) {
		t.Errorf("interval = %v..%v, want %v..%v", got.StartDate, got.EndDate, start, end)
	}
}

func TestGetByID_CorruptTimestampIsAnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "")
	mustInsert(t, store, r)

	if _, err := store.DB().ExecContext(ctx,
		`UPDATE requests SET created_at = 'not-a-timestamp' WHERE id = ?`, "req-1"); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	_, err := store.GetByID(ctx, "req-1")
	if err == nil {
		t.Fatal("expected an error for a corrupt timestamp, got nil")
	}
	if errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("got ErrRequestNotFound, want a scan error: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestUpdate_BumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "")
	mustInsert(t, store, r)

	now := time.Now().UTC().Truncate(time.Second)
	r.Status = domain.StatusApproved
	r.ResponseNote = "welcome"
	r.ResponseAt = &now
	r.UpdatedAt = now

	updated, err := store.Update(ctx, r, 1)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.Status != domain.StatusApproved {
		t.Errorf("Status = %q, want approved", updated.Status)
	}
	if updated.ResponseNote != "welcome" {
		t.Errorf("ResponseNote = %q", updated.ResponseNote)
	}
	if updated.ResponseAt == nil || !updated.ResponseAt.Equal(now) {
		t.Errorf("ResponseAt = %v, want %v", updated.ResponseAt, now)
	}
}

func TestUpdate_VersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "")
	mustInsert(t, store, r)

	r.Status = domain.StatusApproved
	if _, err := store.Update(ctx, r, 1); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// A second writer still holding version 1 must lose.
	r.Status = domain.StatusCancelled
	_, err := store.Update(ctx, r, 1)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := store.GetByID(ctx, "req-1")
	if got.Status != domain.StatusApproved {
		t.Errorf("Status = %q, the losing write must not apply", got.Status)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store := newTestStore(t)

	r := domain.NewStayBooking("nonexistent", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "")
	_, err := store.Update(context.Background(), r, 1)
	if !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestUpdate_DoesNotTouchImmutableFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "original")
	mustInsert(t, store, r)

	// Even a corrupted in-memory copy cannot rewrite identity or dates.
	mutated := r
	mutated.ResourceID = "apt-99"
	mutated.RequesterID = "u-99"
	mutated.StartDate = day(2028, 1, 1)
	mutated.Status = domain.StatusApproved

	if _, err := store.Update(ctx, mutated, 1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "req-1")
	if got.ResourceID != "apt-1" {
		t.Errorf("ResourceID = %q, want apt-1", got.ResourceID)
	}
	if got.RequesterID != "u-1" {
		t.Errorf("RequesterID = %q, want u-1", got.RequesterID)
	}
	if !got.StartDate.Equal(day(2027, 6, 1)) {
		t.Errorf("StartDate = %v, want original", got.StartDate)
	}
}

func TestList_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stay := domain.NewStayBooking("req-1", "apt-1", testRequester, "u-2",
		day(2027, 6, 1), day(2027, 6, 10), 2, "")
	mustInsert(t, store, stay)

	viewing := domain.NewViewingAppointment("req-2", "apt-1", testRequester, "u-2",
		day(2027, 7, 1), nil, "", domain.DefaultViewingFee)
	mustInsert(t, store, viewing)

	other := domain.NewStayBooking("req-3", "apt-2",
		domain.Actor{ID: "u-3", Role: domain.RoleTenant}, "u-4",
		day(2027, 6, 1), day(2027, 6, 10), 1, "")
	mustInsert(t, store, other)

	t.Run("by resource and kind", func(t *testing.T) {
		kind := domain.KindStayBooking
		got, err := store.List(ctx, domain.ListFilter{ResourceID: "apt-1", Kind: &kind})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "req-1" {
			t.Errorf("got %v, want [req-1]", ids(got))
		}
	})

	t.Run("by requester", func(t *testing.T) {
		got, err := store.List(ctx, domain.ListFilter{RequesterID: "u-1"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %v, want 2 requests", ids(got))
		}
	})

	t.Run("by owner", func(t *testing.T) {
		got, err := store.List(ctx, domain.ListFilter{OwnerID: "u-4"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "req-3" {
			t.Errorf("got %v, want [req-3]", ids(got))
		}
	})

	t.Run("by statuses", func(t *testing.T) {
		got, err := store.List(ctx, domain.ListFilter{Statuses: domain.ActiveStatuses})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %v, want all 3 pending requests", ids(got))
		}

		got, err = store.List(ctx, domain.ListFilter{Statuses: []domain.Status{domain.StatusCancelled}})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want none", ids(got))
		}
	})
}

func TestList_Pagination(t *testing.T) {
	store := newTestStore(t)

	for i := range 5 {
		r := domain.NewStayBooking(fmt.Sprintf("req-%d", i), "apt-1", testRequester, "u-2",
			day(2027, 6, 1), day(2027, 6, 10), 1, "")
		mustInsert(t, store, r)
	}

	got, err := store.List(context.Background(), domain.ListFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d requests, want 2", len(got))
	}
}

func ids(requests []domain.Request) []string {
	out := make([]string, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.ID)
	}
	return out
}

func TestResourceDirectory_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	resources := store.Resources()

	res := domain.Resource{ID: "apt-1", OwnerID: "u-2", Title: "Altbau in Mitte"}
	if err := resources.Register(ctx, res); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := resources.GetByID(ctx, "apt-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != res {
		t.Errorf("got %+v, want %+v", got, res)
	}
}

func TestResourceDirectory_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resources().GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestIdentityDirectory_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	identities := store.Identities()

	if err := identities.Record(ctx, "u-1", domain.ContactCard{Name: "Anna", Email: "old@example.com"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := identities.Record(ctx, "u-1", domain.ContactCard{Name: "Anna", Email: "anna@example.com", Phone: "+49151"}); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	got, err := identities.GetContact(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetContact failed: %v", err)
	}
	if got.Email != "anna@example.com" {
		t.Errorf("Email = %q, the later record should win", got.Email)
	}
	if got.Phone != "+49151" {
		t.Errorf("Phone = %q, want +49151", got.Phone)
	}
}

func TestIdentityDirectory_UnknownUserIsEmptyCard(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Identities().GetContact(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetContact failed: %v", err)
	}
	if !got.Empty() {
		t.Errorf("got %+v, want empty card", got)
	}
}
