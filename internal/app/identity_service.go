package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"samarpan/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// SocialProfile is what an external identity provider tells us about a user after the handshake.
type SocialProfile struct {
	Provider   domain.Provider
	ExternalID string
	Email      string
	Name       string
	Avatar     string
}

// IdentityService registers, authenticates and reconciles users on their email.
type IdentityService struct {
	users    UserRepository
	now      func() time.Time
	newID    func() string
	hashCost int
}

// IdentityOption customizes an IdentityService.
type IdentityOption func(*IdentityService)

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) IdentityOption {
	return func(s *IdentityService) { s.hashCost = cost }
}

// WithIdentityClock is test-only for deterministic timestamps.
func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(s *IdentityService) { s.now = now }
}

func NewIdentityService(users UserRepository, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a local account with a bcrypt password hash.
func (s *IdentityService) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return domain.User{}, domain.NewError(domain.KindValidation, "name, email and password are required")
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, domain.NewError(domain.KindValidation, "email is not valid")
	}
	if len(password) < minPasswordLength {
		return domain.User{}, domain.NewError(domain.KindValidation, "password must be at least 6 characters")
	}

	// Fast path for a friendly error; the unique index still decides concurrent signups.
	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		return domain.User{}, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.NewUser(s.newID(), email, name, s.now())
	user.PasswordHash = hash
	user.Provider = domain.ProviderLocal
	if err := s.users.InsertUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate checks an email/password pair. Social-only accounts have no password and are
// reported as not found.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, domain.NewError(domain.KindValidation, "email and password are required")
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if len(user.PasswordHash) == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidPassword
	}
	return user, nil
}

// ReconcileSocialIdentity converges a provider login onto the user owning the email. Unknown emails
// get a social-only account; known ones are enriched with a fill-only merge.
func (s *IdentityService) ReconcileSocialIdentity(ctx context.Context, profile SocialProfile) (domain.User, error) {
	if !profile.Provider.Social() {
		return domain.User{}, domain.NewError(domain.KindValidation, "unsupported identity provider")
	}
	email := domain.NormalizeEmail(profile.Email)
	if email == "" {
		return domain.User{}, domain.ErrMissingEmail
	}
	profile.Email = email
	profile.ExternalID = strings.TrimSpace(profile.ExternalID)
	if profile.ExternalID == "" {
		return domain.User{}, domain.NewError(domain.KindValidation, "provider account id is required")
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		created, err := s.createSocial(ctx, profile)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, domain.ErrEmailTaken) {
			return domain.User{}, err
		}
		// Lost a concurrent first login for the same email; merge into the winner.
		if user, err = s.users.FindUserByEmail(ctx, email); err != nil {
			return domain.User{}, err
		}
	case err != nil:
		return domain.User{}, err
	}
	return s.mergeSocial(ctx, user, profile)
}

func (s *IdentityService) createSocial(ctx context.Context, profile SocialProfile) (domain.User, error) {
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.SplitN(profile.Email, "@", 2)[0]
	}
	user := domain.NewUser(s.newID(), profile.Email, name, s.now())
	user = socialPatch(domain.User{}, profile).Apply(user)
	if err := s.users.InsertUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *IdentityService) mergeSocial(ctx context.Context, user domain.User, profile SocialProfile) (domain.User, error) {
	patch := socialPatch(user, profile)
	if patch.Empty() {
		return user, nil
	}
	return s.users.FillIdentity(ctx, user.ID, patch, s.now())
}

// socialPatch returns the fields of profile that are still empty on user.
func socialPatch(user domain.User, profile SocialProfile) domain.IdentityPatch {
	var patch domain.IdentityPatch
	if user.Provider == "" {
		patch.Provider = profile.Provider
	}
	if user.ExternalID(profile.Provider) == "" {
		switch profile.Provider {
		case domain.ProviderGoogle:
			patch.GoogleID = profile.ExternalID
		case domain.ProviderFacebook:
			patch.FacebookID = profile.ExternalID
		}
	}
	if user.Avatar == "" {
		patch.Avatar = strings.TrimSpace(profile.Avatar)
	}
	return patch
}

// ResolveUserReference turns an email or a user id into a user id.
func (s *IdentityService) ResolveUserReference(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", domain.NewError(domain.KindValidation, "user reference is required")
	}
	var (
		user domain.User
		err  error
	)
	if strings.Contains(ref, "@") {
		user, err = s.users.FindUserByEmail(ctx, domain.NormalizeEmail(ref))
	} else {
		user, err = s.users.GetUser(ctx, ref)
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// User returns a user by id.
func (s *IdentityService) User(ctx context.Context, id string) (domain.User, error) {
	return s.users.GetUser(ctx, id)
}
