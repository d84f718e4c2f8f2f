package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/queueease/internal/model"
)

// ServiceRepo reads the service catalog.
type ServiceRepo struct{ DB *sql.DB }

func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{DB: db} }

// Services lists all services ordered by id.
func (r *ServiceRepo) Services(ctx context.Context) ([]model.Service, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name, description FROM services ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
