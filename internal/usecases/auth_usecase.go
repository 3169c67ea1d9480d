package usecases

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"juraganbot/internal/entities"
)

// UserStore is the credential storage the auth flow depends on.
type UserStore interface {
	GetByUsername(username string) (*entities.User, error)
	CreateIfAbsent(user *entities.User) error
}

// AuthUsecase backs the admin API: a single credential store with bcrypt
// hashes and HS256 tokens for the dashboard/broadcast endpoints.
type AuthUsecase struct {
	users     UserStore
	jwtSecret []byte
}

func NewAuthUsecase(users UserStore, secret string) *AuthUsecase {
	return &AuthUsecase{
		users:     users,
		jwtSecret: []byte(secret),
	}
}

func (uc *AuthUsecase) Login(username, password string) (string, error) {
	user, err := uc.users.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

// EnsureAdmin provisions the admin account from the environment. An
// account that already exists is left untouched, password included.
func (uc *AuthUsecase) EnsureAdmin(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return uc.users.CreateIfAbsent(&entities.User{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         "admin",
	})
}
