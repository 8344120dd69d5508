package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mailburst/mailburst-backend/internal/model"
)

// UserRepositoryInterface resolves the acting user for the controller and
// provisions accounts for the seeder
type UserRepositoryInterface interface {
	GetByID(id string) (*model.User, error)
	GetOrCreateByEmail(email, name string) (*model.User, error)
}

// UserRepository is the concrete implementation
type UserRepository struct {
	DB *sql.DB
}

// GetByID fetches a user by ID
func (r *UserRepository) GetByID(id string) (*model.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE id = $1`
	row := r.DB.QueryRow(query, id)

	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreateByEmail returns the existing user for the address or creates one
func (r *UserRepository) GetOrCreateByEmail(email, name string) (*model.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE email = $1`
	row := r.DB.QueryRow(query, email)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == nil {
		return &u, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	u = model.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}
	insert := `INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.DB.Exec(insert, u.ID, u.Email, u.Name, u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
