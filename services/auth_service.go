package services

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// Context keys set by the JWT middleware.
const (
	ContextUserID      = "userID"
	ContextPhoneNumber = "phoneNumber"
	ContextIsAdmin     = "isAdmin"
)

// AuthService issues phone-bound sessions. Signup creates the skeleton
// profile (id, phone number, derived hash); everything else is filled in
// during profile setup. The token's phone claim is the session-bound
// number the identity reconciler trusts.
type AuthService struct {
	profiles  stores.ProfileStore
	hasher    *PhoneHasher
	jwtSecret string
}

func NewAuthService(profiles stores.ProfileStore, hasher *PhoneHasher, jwtSecret string) *AuthService {
	return &AuthService{profiles: profiles, hasher: hasher, jwtSecret: jwtSecret}
}

// Register creates a new user keyed by a fresh id and returns a session
// token for it.
func (s *AuthService) Register(ctx context.Context, phoneNumber, password string) (string, models.ProfileID, error) {
	if phoneNumber == "" || password == "" {
		return "", "", errors.ErrInvalidArgument
	}
	hash := s.hasher.Hash(phoneNumber)
	if _, err := s.profiles.FindByHashedPhone(ctx, hash); err == nil {
		return "", "", errors.ErrAlreadyExists
	} else if !errors.IsNotFound(err) {
		return "", "", err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", errors.Wrap(err, "INTERNAL", "failed to hash password", http.StatusInternalServerError)
	}

	profile := models.Profile{
		ID:                 models.ProfileID(uuid.New().String()),
		PhoneNumber:        CanonicalizePhoneNumber(phoneNumber),
		HashedPhoneNumber:  hash,
		PasswordHash:       string(passwordHash),
		Friends:            []string{},
		JoinDate:           time.Now().UTC(),
		ShareLocation:      true,
		AllowNotifications: true,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return "", "", err
	}

	token, err := s.issueToken(profile)
	return token, profile.ID, err
}

// Login authenticates by phone number and password and returns a session
// token.
func (s *AuthService) Login(ctx context.Context, phoneNumber, password string) (string, models.ProfileID, error) {
	if phoneNumber == "" || password == "" {
		return "", "", errors.ErrInvalidArgument
	}
	profile, err := s.profiles.FindByHashedPhone(ctx, s.hasher.Hash(phoneNumber))
	if errors.IsNotFound(err) {
		return "", "", errors.ErrUnauthenticated
	}
	if err != nil {
		return "", "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)) != nil {
		return "", "", errors.ErrUnauthenticated
	}
	token, err := s.issueToken(profile)
	return token, profile.ID, err
}

func (s *AuthService) issueToken(p models.Profile) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":      string(p.ID),
		"phoneNumber": p.PhoneNumber,
		"isAdmin":     p.IsAdmin,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "INTERNAL", "failed to generate token", http.StatusInternalServerError)
	}
	return tokenString, nil
}

// SessionPhoneProvider resolves the session's bound phone number from
// the verified token claims the JWT middleware placed in the context.
// The client body is never consulted, which is what keeps a hostile
// client from migrating someone else's legacy profile.
type SessionPhoneProvider struct{}

func NewSessionPhoneProvider() *SessionPhoneProvider { return &SessionPhoneProvider{} }

func (SessionPhoneProvider) PhoneNumber(ctx context.Context, session models.SessionID) (string, error) {
	caller, _ := ctx.Value(ContextUserID).(string)
	if caller == "" || caller != string(session) {
		return "", errors.ErrUnauthenticated
	}
	phone, _ := ctx.Value(ContextPhoneNumber).(string)
	return phone, nil
}
