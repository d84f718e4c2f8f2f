package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/queueease/internal/model"
)

const ticketColumns = "id, owner_id, service_id, status, position, created_at, updated_at"

const activeFilter = "status IN ('waiting','in-progress')"

// defaultListLimit caps history queries when callers pass limit <= 0.
const defaultListLimit = 100

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// TicketRepo is the MySQL QueueStore.
type TicketRepo struct {
	*NotificationRepo
	DB  *sql.DB
	now func() time.Time
}

func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{NotificationRepo: NewNotificationRepo(db), DB: db, now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t   model.Ticket
		pos sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.ServiceID, &t.Status, &pos, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Ticket{}, ErrNotFound
		}
		return model.Ticket{}, err
	}
	if pos.Valid {
		t.Position = int(pos.Int64)
	}
	return t, nil
}

func queryTickets(ctx context.Context, q dbtx, query string, args ...any) ([]model.Ticket, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

// Begin starts a MySQL transaction.  Reads issued through the returned
// QueueTx use SELECT ... FOR UPDATE.
func (r *TicketRepo) Begin(ctx context.Context) (QueueTx, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &ticketTx{tx: tx, now: r.now}, nil
}

func (r *TicketRepo) ListActive(ctx context.Context) ([]model.Ticket, error) {
	return queryTickets(ctx, r.DB,
		"SELECT "+ticketColumns+" FROM tickets WHERE "+activeFilter+" ORDER BY position ASC, id ASC")
}

func (r *TicketRepo) ActiveForOwner(ctx context.Context, ownerID uint64) (model.Ticket, error) {
	return scanTicket(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE owner_id=? AND "+activeFilter+" LIMIT 1", ownerID))
}

func (r *TicketRepo) TicketByID(ctx context.Context, id uint64) (model.Ticket, error) {
	return scanTicket(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id=? LIMIT 1", id))
}

func (r *TicketRepo) ListByStatus(ctx context.Context, status string, limit int) ([]model.Ticket, error) {
	return queryTickets(ctx, r.DB,
		"SELECT "+ticketColumns+" FROM tickets WHERE status=? ORDER BY updated_at DESC, id DESC LIMIT ?",
		status, clampLimit(limit))
}

func (r *TicketRepo) ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]model.Ticket, error) {
	return queryTickets(ctx, r.DB,
		"SELECT "+ticketColumns+" FROM tickets WHERE owner_id=? ORDER BY id DESC LIMIT ?",
		ownerID, clampLimit(limit))
}

func (r *TicketRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM tickets GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{
		model.StatusWaiting:    0,
		model.StatusInProgress: 0,
		model.StatusCompleted:  0,
		model.StatusCanceled:   0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *TicketRepo) CountByService(ctx context.Context) ([]model.ServiceLoad, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(t.id),
		       COALESCE(SUM(t.status IN ('waiting','in-progress')), 0)
		FROM services s
		LEFT JOIN tickets t ON t.service_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ServiceLoad
	for rows.Next() {
		var l model.ServiceLoad
		if err := rows.Scan(&l.ServiceID, &l.ServiceName, &l.Total, &l.Active); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ticketTx implements QueueTx over *sql.Tx.
type ticketTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *ticketTx) ActiveTicketForOwner(ctx context.Context, ownerID uint64) (model.Ticket, error) {
	return scanTicket(t.tx.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE owner_id=? AND "+activeFilter+" LIMIT 1 FOR UPDATE", ownerID))
}

func (t *ticketTx) ActiveTickets(ctx context.Context) ([]model.Ticket, error) {
	return queryTickets(ctx, t.tx,
		"SELECT "+ticketColumns+" FROM tickets WHERE "+activeFilter+" ORDER BY id ASC FOR UPDATE")
}

func (t *ticketTx) TicketByID(ctx context.Context, id uint64) (model.Ticket, error) {
	return scanTicket(t.tx.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id=? LIMIT 1 FOR UPDATE", id))
}

func (t *ticketTx) InsertTicket(ctx context.Context, tk model.Ticket) (model.Ticket, error) {
	now := t.now()
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO tickets (owner_id, service_id, status, position, created_at, updated_at) VALUES (?,?,?,?,?,?)",
		tk.OwnerID, tk.ServiceID, tk.Status, nullPosition(tk.Position), now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Ticket{}, ErrDuplicateActive
		}
		return model.Ticket{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Ticket{}, err
	}
	tk.ID = uint64(id)
	tk.CreatedAt = now
	tk.UpdatedAt = now
	return tk, nil
}

func (t *ticketTx) UpdateTicketStatus(ctx context.Context, id uint64, status string) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE tickets SET status=?, updated_at=? WHERE id=?", status, t.now(), id)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateActive
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *ticketTx) UpdateTicketPosition(ctx context.Context, id uint64, position int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE tickets SET position=?, updated_at=? WHERE id=?", nullPosition(position), t.now(), id)
	return err
}

func (t *ticketTx) InsertNotification(ctx context.Context, target *uint64, message string) (model.Notification, error) {
	return insertNotification(ctx, t.tx, t.now(), target, message)
}

func (t *ticketTx) ServiceExists(ctx context.Context, serviceID uint64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, "SELECT 1 FROM services WHERE id=? LIMIT 1", serviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *ticketTx) Commit() error   { return t.tx.Commit() }
func (t *ticketTx) Rollback() error { return t.tx.Rollback() }

func nullPosition(p int) any {
	if p <= 0 {
		return nil
	}
	return p
}
