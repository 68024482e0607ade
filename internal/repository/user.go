package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// FindUserByID возвращает пользователя или apperror NotFound
func (r *UserRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, name, role, status FROM users WHERE id = $1;`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Name, &user.Role, &user.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return user, nil
}
