// Package accounts is the user directory behind login and registration. It
// only produces identities and tokens; the reservation engine never sees it.
package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roombooking/backend/internal/auth"
	"roombooking/backend/internal/domain"
)

var (
	ErrMissingField = errors.New("firstName, lastName and email are required")
	ErrInvalidEmail = errors.New("invalid email")
	ErrEmailTaken   = errors.New("email already registered")
	ErrUnknownEmail = errors.New("user not found")
)

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

func (u User) Identity() domain.Identity {
	return domain.Identity{
		UserID:      u.ID,
		DisplayName: u.DisplayName(),
		IsAdmin:     u.Role == auth.RoleAdmin,
	}
}

// Session is handed back to the client after login or registration.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

type TokenIssuer interface {
	Issue(who domain.Identity) (auth.AccessToken, error)
}

type Service struct {
	issuer TokenIssuer

	mu      sync.RWMutex
	byEmail map[string]User
}

func NewService(issuer TokenIssuer) *Service {
	return &Service{issuer: issuer, byEmail: make(map[string]User)}
}

// DefaultUsers are the accounts present on a fresh start.
var DefaultUsers = []User{
	{FirstName: "Admin", LastName: "User", Email: "admin@company.com", Role: auth.RoleAdmin},
	{FirstName: "John", LastName: "Doe", Email: "john@test.com", Role: auth.RoleUser},
	{FirstName: "Jane", LastName: "Smith", Email: "jane@test.com", Role: auth.RoleUser},
	{FirstName: "Bob", LastName: "Jones", Email: "bob@test.com", Role: auth.RoleUser},
}

// Seed adds users that are not registered yet. Seeded ids derive from the
// email so tokens issued before a restart stay valid.
func (s *Service) Seed(users ...User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		key := normalizeEmail(u.Email)
		if _, ok := s.byEmail[key]; ok {
			continue
		}
		u.Email = key
		if u.ID == "" {
			u.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("roombooking:user:"+key)).String()
		}
		if u.Role == "" {
			u.Role = auth.RoleUser
		}
		s.byEmail[key] = u
	}
}

func (s *Service) Register(ctx context.Context, firstName, lastName, email string) (Session, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = normalizeEmail(email)
	if firstName == "" || lastName == "" || email == "" {
		return Session{}, ErrMissingField
	}
	if !strings.Contains(email, "@") {
		return Session{}, ErrInvalidEmail
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, err
	}
	u := User{ID: id.String(), FirstName: firstName, LastName: lastName, Email: email, Role: auth.RoleUser}

	s.mu.Lock()
	if _, ok := s.byEmail[email]; ok {
		s.mu.Unlock()
		return Session{}, ErrEmailTaken
	}
	s.byEmail[email] = u
	s.mu.Unlock()

	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, ErrMissingField
	}
	s.mu.RLock()
	u, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrUnknownEmail
	}
	return s.session(u)
}

func (s *Service) session(u User) (Session, error) {
	tok, err := s.issuer.Issue(u.Identity())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok.Token, ExpiresAt: tok.ExpiresAt, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
