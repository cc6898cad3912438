package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/bookiq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements domain.RequestRepository, domain.ResourceDirectory,
// and domain.IdentityDirectory using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// timeFormat carries a literal Z, so every timestamp is normalized to UTC
// before formatting. Storing the wall clock of an offset time would shift
// the instant on read-back.
const timeFormat = "2006-01-02T15:04:05Z"

const requestColumns = `id, kind, resource_id, requester_id, owner_id, status,
	start_date, end_date, guest_count, message,
	requested_date, alternative_dates, confirmed_date, payment_status, fee_amount,
	requester_name, requester_email, requester_phone,
	response_note, response_at,
	cancellation_reason, cancelled_at, cancelled_by,
	version, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, r domain.Request) error {
	alternatives, err := encodeDates(r.AlternativeDates)
	if err != nil {
		return fmt.Errorf("encoding alternative dates: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.ResourceID, r.RequesterID, r.OwnerID, string(r.Status),
		encodeTime(r.StartDate), encodeTime(r.EndDate), r.GuestCount, r.Message,
		encodeTime(r.RequestedDate), alternatives, encodeTimePtr(r.ConfirmedDate), string(r.PaymentStatus), r.FeeAmount.String(),
		r.RequesterName, r.RequesterEmail, r.RequesterPhone,
		r.ResponseNote, encodeTimePtr(r.ResponseAt),
		r.CancellationReason, encodeTimePtr(r.CancelledAt), r.CancelledBy,
		r.Version,
		r.CreatedAt.UTC().Format(timeFormat),
		r.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.Request, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Request{}, domain.ErrRequestNotFound
		}
		return domain.Request{}, err
	}
	return r, nil
}

// Update persists a request guarded by its expected version. A write that
// matches no row is disambiguated with a follow-up read: either the row is
// gone or someone else bumped the version first.
func (s *Store) Update(ctx context.Context, r domain.Request, expectedVersion int64) (domain.Request, error) {
	alternatives, err := encodeDates(r.AlternativeDates)
	if err != nil {
		return domain.Request{}, fmt.Errorf("encoding alternative dates: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE requests SET
			status = ?, confirmed_date = ?, alternative_dates = ?, payment_status = ?,
			response_note = ?, response_at = ?,
			cancellation_reason = ?, cancelled_at = ?, cancelled_by = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(r.Status), encodeTimePtr(r.ConfirmedDate), alternatives, string(r.PaymentStatus),
		r.ResponseNote, encodeTimePtr(r.ResponseAt),
		r.CancellationReason, encodeTimePtr(r.CancelledAt), r.CancelledBy,
		expectedVersion+1, r.UpdatedAt.UTC().Format(timeFormat),
		r.ID, expectedVersion,
	)
	if err != nil {
		return domain.Request{}, fmt.Errorf("updating request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Request{}, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetByID(ctx, r.ID); errors.Is(err, domain.ErrRequestNotFound) {
			return domain.Request{}, domain.ErrRequestNotFound
		}
		return domain.Request{}, domain.ErrVersionConflict
	}

	return s.GetByID(ctx, r.ID)
}

func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var clauses []string
	var args []any

	if filter.ResourceID != "" {
		clauses = append(clauses, `resource_id = ?`)
		args = append(args, filter.ResourceID)
	}
	if filter.RequesterID != "" {
		clauses = append(clauses, `requester_id = ?`)
		args = append(args, filter.RequesterID)
	}
	if filter.OwnerID != "" {
		clauses = append(clauses, `owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.Kind != nil {
		clauses = append(clauses, `kind = ?`)
		args = append(args, string(*filter.Kind))
	}
	if len(filter.Statuses) > 0 {
		placeholders := ""
		for i, status := range filter.Statuses {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, `status IN (`+placeholders+`)`)
	}

	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (domain.Request, error) {
	var r domain.Request
	var kind, status, paymentStatus, fee, alternatives, createdAt, updatedAt string
	var startDate, endDate, requestedDate, confirmedDate, responseAt, cancelledAt sql.NullString

	err := row.Scan(
		&r.ID, &kind, &r.ResourceID, &r.RequesterID, &r.OwnerID, &status,
		&startDate, &endDate, &r.GuestCount, &r.Message,
		&requestedDate, &alternatives, &confirmedDate, &paymentStatus, &fee,
		&r.RequesterName, &r.RequesterEmail, &r.RequesterPhone,
		&r.ResponseNote, &responseAt,
		&r.CancellationReason, &cancelledAt, &r.CancelledBy,
		&r.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Request{}, err
		}
		return domain.Request{}, fmt.Errorf("scanning request: %w", err)
	}

	r.Kind = domain.Kind(kind)
	r.Status = domain.Status(status)
	r.PaymentStatus = domain.PaymentStatus(paymentStatus)
	var dec timeDecoder
	r.StartDate = dec.nullable(startDate)
	r.EndDate = dec.nullable(endDate)
	r.RequestedDate = dec.nullable(requestedDate)
	r.ConfirmedDate = dec.nullablePtr(confirmedDate)
	r.ResponseAt = dec.nullablePtr(responseAt)
	r.CancelledAt = dec.nullablePtr(cancelledAt)
	r.CreatedAt = dec.parse(createdAt)
	r.UpdatedAt = dec.parse(updatedAt)
	if dec.err != nil {
		return domain.Request{}, fmt.Errorf("parsing timestamps: %w", dec.err)
	}

	r.FeeAmount, err = decimal.NewFromString(fee)
	if err != nil {
		return domain.Request{}, fmt.Errorf("parsing fee amount %q: %w", fee, err)
	}

	r.AlternativeDates, err = decodeDates(alternatives)
	if err != nil {
		return domain.Request{}, fmt.Errorf("parsing alternative dates: %w", err)
	}

	return r, nil
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// timeDecoder parses stored timestamps and keeps the first failure, so
// scanRequest decodes a row in one pass and checks once. A row that fails
// to parse is a scan error, never a zero time.
type timeDecoder struct {
	err error
}

func (d *timeDecoder) parse(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return t
}

func (d *timeDecoder) nullable(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	return d.parse(s.String)
}

func (d *timeDecoder) nullablePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := d.parse(s.String)
	if d.err != nil {
		return nil
	}
	return &t
}

func encodeDates(dates []time.Time) (string, error) {
	formatted := make([]string, 0, len(dates))
	for _, d := range dates {
		formatted = append(formatted, d.UTC().Format(timeFormat))
	}
	b, err := json.Marshal(formatted)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeDates(raw string) ([]time.Time, error) {
	var formatted []string
	if err := json.Unmarshal([]byte(raw), &formatted); err != nil {
		return nil, err
	}
	if len(formatted) == 0 {
		return nil, nil
	}
	dates := make([]time.Time, 0, len(formatted))
	for _, f := range formatted {
		t, err := time.Parse(timeFormat, f)
		if err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, nil
}
