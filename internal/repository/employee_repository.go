package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

// EmployeeRepository reads employee directory fields needed by leave filing.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs an EmployeeRepository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// GetProfile returns the name and birthday of an employee.
func (r *EmployeeRepository) GetProfile(ctx context.Context, id string) (*models.EmployeeProfile, error) {
	const query = `SELECT id, full_name, birthday FROM employees WHERE id = $1`
	var profile models.EmployeeProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}
