package auth

import (
	"context"
	"strconv"
)

// LoginResult is what a successful login hands to the transport layer
type LoginResult struct {
	User *User
	// Identity is the value stored in the session
	Identity string
	// RememberToken is set when remember me was requested
	RememberToken string
}

// Auther runs the credential flows: login, reauthentication and remember
// me restoration.
type Auther struct {
	provider *UserProvider
	verifier *IdentityVerifier
	remember *RememberTokenService
	logger   Logger
	activity ActivitySink
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(provider *UserProvider, verifier *IdentityVerifier, remember *RememberTokenService) *Auther {
	return &Auther{
		provider: provider,
		verifier: verifier,
		remember: remember,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// RememberTokens returns the remember token service
func (s *Auther) RememberTokens() *RememberTokenService {
	return s.remember
}

// Login verifies credentials for an active user
func (s *Auther) Login(ctx context.Context, identity, password string, remember bool) (*LoginResult, error) {
	user, err := s.provider.VerifyIdentity(ctx, identity, password)
	if err != nil {
		s.logger.Debug("login failed", "identity", identity, "error", err)
		s.emit(ctx, ActivityEventLoginFailure, nil, map[string]any{
			"identity": identity,
		})
		return nil, err
	}

	result := &LoginResult{
		User:     user,
		Identity: EncodeIdentity(user),
	}

	if remember && s.remember != nil {
		token, err := s.remember.Generate(result.Identity)
		if err != nil {
			s.logger.Error("failed to issue remember token", "user_id", user.ID, "error", err)
		} else {
			result.RememberToken = token
		}
	}

	s.emit(ctx, ActivityEventLoginSuccess, user, map[string]any{
		"remember": remember,
	})

	return result, nil
}

// Reauthenticate confirms the password of the logged in user. It does not
// rotate the serial.
func (s *Auther) Reauthenticate(ctx context.Context, user *User, password string) error {
	if user == nil || !user.IsActive {
		return ErrInactiveUser
	}

	if err := s.provider.VerifyPassword(user, password); err != nil {
		s.emit(ctx, ActivityEventReauthFailure, user, nil)
		return err
	}

	s.emit(ctx, ActivityEventReauthSuccess, user, nil)
	return nil
}

// Restore resolves a remember token back to its user
func (s *Auther) Restore(ctx context.Context, token string) (*User, string, error) {
	if s.remember == nil {
		return nil, "", ErrNoSession
	}

	identity, err := s.remember.Validate(token)
	if err != nil {
		return nil, "", err
	}

	user, err := s.verifier.Verify(ctx, identity)
	if err != nil {
		return nil, "", err
	}
	return user, identity, nil
}

// Logout records the end of a session
func (s *Auther) Logout(ctx context.Context, user *User) {
	s.emit(ctx, ActivityEventLogout, user, nil)
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     userActor(user),
		Metadata:  metadata,
	}
	if user != nil {
		event.UserID = strconv.FormatInt(user.ID, 10)
	}
	recordActivity(ctx, s.activity, s.logger, event)
}
