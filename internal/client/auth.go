package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sodular/sodular-go/internal/middleware"
	"github.com/sodular/sodular-go/internal/model"
	"github.com/sodular/sodular-go/internal/token"
)

// AuthService covers sign-in, the current user, and user administration.
type AuthService struct {
	c     *Client
	users resource[model.UserData]
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	User   *model.User
	Tokens token.Pair
}

// authPayload accepts {user, tokens: {...}} as well as tokens at the top level.
type authPayload struct {
	User         *model.User `json:"user,omitempty"`
	Tokens       token.Pair  `json:"tokens"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func (a authPayload) pair() token.Pair {
	if a.Tokens.AccessToken != "" {
		return a.Tokens
	}
	return token.Pair{AccessToken: a.AccessToken, RefreshToken: a.RefreshToken}
}

// Login signs in and stores the returned tokens.
// Bad credentials surface as an error matching ErrUnauthorized; no refresh is attempted.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, errors.New("login: email and password are required")
	}
	var out authPayload
	if err := s.c.call(middleware.SkipAuth(ctx), http.MethodPost, "auth/login", nil, creds, &out); err != nil {
		return nil, err
	}
	pair := out.pair()
	if pair.AccessToken == "" {
		return nil, errors.New("login: response carried no access token")
	}
	s.c.session.Set(ctx, pair)
	return &AuthResult{User: out.User, Tokens: pair}, nil
}

// Register creates an account. When the API signs the user in right away the
// returned tokens are stored.
func (s *AuthService) Register(ctx context.Context, user model.UserData) (*AuthResult, error) {
	if user.Email == "" || user.Password == "" {
		return nil, errors.New("register: email and password are required")
	}
	var out authPayload
	if err := s.c.call(middleware.SkipAuth(ctx), http.MethodPost, "auth/register", nil, dataBody{Data: user}, &out); err != nil {
		return nil, err
	}
	pair := out.pair()
	if pair.AccessToken != "" {
		s.c.session.Set(ctx, pair)
	}
	return &AuthResult{User: out.User, Tokens: pair}, nil
}

// Refresh forces a token refresh with the stored refresh token.
// It joins a refresh already started by a burst of 401s instead of racing it.
func (s *AuthService) Refresh(ctx context.Context) (token.Pair, error) {
	pair, err := s.c.session.ForceRefresh(ctx)
	if err != nil {
		return token.Pair{}, fmt.Errorf("refresh: %w: %w", ErrUnauthorized, err)
	}
	return pair, nil
}

// Logout tells the API to revoke the session and always clears local tokens.
// A failed remote call is logged, not returned.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.c.IsAuthenticated() {
		body := map[string]string{"refreshToken": s.c.session.Tokens().RefreshToken}
		if err := s.c.call(ctx, http.MethodPost, "auth/logout", nil, body, nil); err != nil {
			s.c.logger.Debug("remote logout failed", "error", err)
		}
	}
	s.c.session.Clear(ctx)
	return nil
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := s.c.call(ctx, http.MethodGet, "auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsers lists accounts.
func (s *AuthService) ListUsers(ctx context.Context, q model.Query) (*model.List[model.User], error) {
	return s.users.list(ctx, nil, q)
}

// GetUser fetches one account.
func (s *AuthService) GetUser(ctx context.Context, uid string) (*model.User, error) {
	return s.users.get(ctx, nil, uid)
}

// PatchUser updates fields of an account.
func (s *AuthService) PatchUser(ctx context.Context, uid string, changes map[string]any) (*model.User, error) {
	return s.users.patch(ctx, nil, uid, changes)
}

// DeleteUser removes an account.
func (s *AuthService) DeleteUser(ctx context.Context, uid string) error {
	return s.users.delete(ctx, nil, uid)
}
