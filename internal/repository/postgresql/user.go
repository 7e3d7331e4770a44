package postgresql

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mealbridge/mealbridge/internal/db"
	"github.com/mealbridge/mealbridge/internal/storage"
)

// UserRepo is the thin identity shim backing basic auth. Real identity
// management belongs to an external provider; this only maps credentials to
// an Actor the core can trust.
type UserRepo struct {
	db db.DB
}

func NewUserRepo(db db.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) EnsureUser(ctx context.Context, username, password string, role storage.Role) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
        INSERT INTO users (username, password, role)
        VALUES ($1, $2, $3)
        ON CONFLICT (username) DO NOTHING
    `, username, string(hashedPassword), string(role))
	return err
}

func (r *UserRepo) Authenticate(ctx context.Context, username, password string) (*storage.Actor, error) {
	var hashedPassword, role string
	err := r.db.ExecQueryRow(ctx,
		"SELECT password, role FROM users WHERE username = $1", username).Scan(&hashedPassword, &role)
	if err != nil {
		return nil, errors.New("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	return &storage.Actor{ID: username, Role: storage.Role(role)}, nil
}
