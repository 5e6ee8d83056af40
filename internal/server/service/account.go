// FILE: shogi/internal/server/service/account.go
package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"shogi/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var (
	ErrInvalidUsername = errors.New("username must be 1-40 characters, alphanumeric and underscore only")
	ErrWeakPassword    = errors.New("weak password")
	ErrUnknownUser     = errors.New("user not found")

	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,40}$`)
)

// Account is a registered user as seen by API clients
type Account struct {
	UserID    string
	Username  string
	CreatedAt time.Time
	LastLogin *time.Time
}

// Profile is an account with the analyses it owns, counted per status
type Profile struct {
	Account
	Analyses map[string]int
}

// Credentials are what a successful register or login hands back
type Credentials struct {
	Account
	Token     string
	ExpiresAt time.Time
}

func accountOf(r *storage.UserRecord) Account {
	return Account{UserID: r.UserID, Username: r.Username, CreatedAt: r.CreatedAt, LastLogin: r.LastLoginAt}
}

// CheckPassword enforces the length and letter plus digit rule
func CheckPassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: at most %d characters", ErrWeakPassword, maxPasswordLength)
	}
	if !strings.ContainsFunc(password, unicode.IsLetter) || !strings.ContainsFunc(password, unicode.IsNumber) {
		return fmt.Errorf("%w: needs a letter and a digit", ErrWeakPassword)
	}
	return nil
}

// Register creates an account under the lowercased username and issues its token
func (s *Service) Register(username, password string) (Credentials, error) {
	if s.store == nil {
		return Credentials{}, ErrStorageDisabled
	}
	if !usernamePattern.MatchString(username) {
		return Credentials{}, ErrInvalidUsername
	}
	if err := CheckPassword(password); err != nil {
		return Credentials{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to hash password: %w", err)
	}
	record := storage.UserRecord{
		UserID:       uuid.New().String(),
		Username:     strings.ToLower(username),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(record); err != nil {
		return Credentials{}, err
	}
	return s.issue(accountOf(&record))
}

// Authenticate checks a username and password and stamps the login time
func (s *Service) Authenticate(username, password string) (*Account, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	record, err := s.store.UserByName(username)
	if err != nil {
		// keep unknown users as slow as wrong passwords
		_, _ = auth.HashPassword(password)
		return nil, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(password, record.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.store.TouchLogin(record.UserID, now); err != nil {
		return nil, err
	}
	record.LastLoginAt = &now
	account := accountOf(record)
	return &account, nil
}

// Login authenticates and issues a fresh token
func (s *Service) Login(username, password string) (Credentials, error) {
	account, err := s.Authenticate(username, password)
	if err != nil {
		return Credentials{}, err
	}
	return s.issue(*account)
}

// Profile returns the account behind a token subject with its analysis counts
func (s *Service) Profile(userID string) (*Profile, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	record, err := s.store.UserByID(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	tally, err := s.store.AnalysisTally(userID)
	if err != nil {
		return nil, err
	}
	return &Profile{Account: accountOf(record), Analyses: tally}, nil
}

func (s *Service) issue(a Account) (Credentials, error) {
	token, err := s.GenerateToken(a.UserID, map[string]any{"username": a.Username}, TokenTTL)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Account: a, Token: token, ExpiresAt: time.Now().Add(TokenTTL)}, nil
}

// GenerateToken signs a token for any subject; the CLI mints service tokens with it
func (s *Service) GenerateToken(subject string, claims map[string]any, ttl time.Duration) (string, error) {
	if !s.AuthEnabled() {
		return "", ErrAuthDisabled
	}
	if subject == "" {
		return "", errors.New("empty token subject")
	}
	return auth.GenerateHS256Token(s.jwtSecret, subject, claims, ttl)
}

// ValidateToken verifies a token and returns its subject with claims
func (s *Service) ValidateToken(token string) (string, map[string]any, error) {
	if !s.AuthEnabled() {
		return "", nil, ErrAuthDisabled
	}
	return auth.ValidateHS256Token(s.jwtSecret, token)
}
