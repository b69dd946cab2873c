package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidEmail is returned when a credential request carries no usable email.
var ErrInvalidEmail = errors.New("a valid email is required")

// TinfoilCredentials are the basic-auth credentials handed to the Tinfoil
// client. Password is returned exactly once; only the hash is stored.
type TinfoilCredentials struct {
	Username     string
	Password     string
	PasswordHash string
}

// CredentialService derives per-user Tinfoil shop credentials.
type CredentialService interface {
	Generate(email string) (*TinfoilCredentials, error)
	Verify(password, hash string) bool
}

type credentialService struct{}

func NewCredentialService() CredentialService {
	return &credentialService{}
}

const passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (s *credentialService) Generate(email string) (*TinfoilCredentials, error) {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 {
		return nil, ErrInvalidEmail
	}

	var username strings.Builder
	for _, r := range strings.ToLower(email[:at]) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			username.WriteRune(r)
		}
	}
	if username.Len() == 0 {
		return nil, ErrInvalidEmail
	}

	password, err := randomPassword(6)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &TinfoilCredentials{
		Username:     username.String(),
		Password:     password,
		PasswordHash: string(hash),
	}, nil
}

func (s *credentialService) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func randomPassword(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = passwordCharset[int(b)%len(passwordCharset)]
	}
	return string(buf), nil
}
