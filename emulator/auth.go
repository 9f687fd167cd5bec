package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/bcrypt"

	"github.com/bartossh/Rampart/session"
)

const (
	claimsKey             = "claims"
	refreshTokenHeader    = "Refresh-Token"
	tokenType             = "bearer"
	roleAdmin             = "admin"
	refreshAudienceSuffix = "/refresh"
)

var ErrTokenRevoked = errors.New("token revoked")

type account struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Locale   string `json:"locale,omitempty"`
	Role     string `json:"role"`
}

func (a account) profile() session.Profile {
	return session.Profile{ID: a.ID, Name: a.Name, Email: a.Email, Locale: a.Locale, Role: a.Role}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (s *Server) seed(ctx context.Context) error {
	f := Filter{Equals: map[string]any{"email": s.cfg.AdminEmail}}
	_, total, err := s.repo.List(ctx, userCollection, f, 0, 1)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(account{
		ID:       newID(),
		Name:     "Administrator",
		Email:    s.cfg.AdminEmail,
		Password: string(hash),
		Locale:   "en_US",
		Role:     roleAdmin,
	})
	if err != nil {
		return err
	}
	rec, err := RecordOf(raw)
	if err != nil {
		return err
	}
	rec.CreatedAt = s.now()
	s.log.Info(fmt.Sprintf("emulator seeded administrator account %s", s.cfg.AdminEmail))
	return s.repo.Insert(ctx, userCollection, rec)
}

func (s *Server) accountBy(ctx context.Context, f Filter) (account, error) {
	recs, _, err := s.repo.List(ctx, userCollection, f, 0, 1)
	if err != nil {
		return account{}, err
	}
	if len(recs) == 0 {
		return account{}, ErrNotFound
	}
	var a account
	if err := json.Unmarshal(recs[0].Body, &a); err != nil {
		return account{}, errors.Join(ErrInvalidRecord, err)
	}
	return a, nil
}

func (s *Server) accountByID(ctx context.Context, id string) (account, error) {
	rec, err := s.repo.Get(ctx, userCollection, id)
	if err != nil {
		return account{}, err
	}
	var a account
	if err := json.Unmarshal(rec.Body, &a); err != nil {
		return account{}, errors.Join(ErrInvalidRecord, err)
	}
	return a, nil
}

// issue signs an access token and optionally a refresh token for the account.
func (s *Server) issue(a account, withRefresh bool) (tokenResponse, error) {
	now := s.now()
	jti := uuid.NewString()
	claims := session.Claims{
		Profile:     a.profile(),
		Authorities: []string{a.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			ID:        jti,
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return tokenResponse{}, err
	}
	out := tokenResponse{AccessToken: access, ExpiresIn: int64(s.cfg.AccessTTL.Seconds()), TokenType: tokenType}
	if withRefresh {
		rc := jwt.RegisteredClaims{
			Subject:   a.ID,
			Audience:  jwt.ClaimStrings{s.cfg.Audience + refreshAudienceSuffix},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
			ID:        uuid.NewString(),
		}
		out.RefreshToken, err = jwt.NewWithClaims(jwt.SigningMethodHS256, rc).SignedString([]byte(s.cfg.Secret))
		if err != nil {
			return tokenResponse{}, err
		}
	}

	s.tokenMux.Lock()
	s.live[jti] = struct{}{}
	s.tokenMux.Unlock()
	return out, nil
}

// parse verifies the token signature, expiry and audience.
// Access and refresh tokens carry different audiences and are never interchangeable.
func (s *Server) parse(token, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	return err
}

// RevokeAccessTokens invalidates every issued access token. Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.tokenMux.Lock()
	defer s.tokenMux.Unlock()
	s.live = make(map[string]struct{})
}

func (s *Server) authenticate(c *fiber.Ctx) error {
	token := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
	if token == "" {
		return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", "missing bearer token")
	}
	var claims session.Claims
	if err := s.parse(token, s.cfg.Audience, &claims); err != nil {
		return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", err.Error())
	}
	s.tokenMux.Lock()
	_, ok := s.live[claims.ID]
	s.tokenMux.Unlock()
	if !ok {
		return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", ErrTokenRevoked.Error())
	}
	c.Locals(claimsKey, &claims)
	return c.Next()
}

func (s *Server) login(c *fiber.Ctx) error {
	var cred credentials
	if err := json.Unmarshal(c.Body(), &cred); err != nil || cred.Email == "" || cred.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and password are required")
	}
	a, err := s.accountBy(c.UserContext(), Filter{Equals: map[string]any{"email": cred.Email}})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(c, fiber.StatusUnauthorized, "Invalid credentials", "")
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(cred.Password)); err != nil {
		return s.fail(c, fiber.StatusUnauthorized, "Invalid credentials", "")
	}
	out, err := s.issue(a, true)
	if err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("emulator signed in %s", a.Email))
	return c.JSON(out)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	token := c.Get(refreshTokenHeader)
	if token == "" {
		return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", "missing refresh token")
	}
	var claims jwt.RegisteredClaims
	if err := s.parse(token, s.cfg.Audience+refreshAudienceSuffix, &claims); err != nil {
		return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", err.Error())
	}
	a, err := s.accountByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(c, fiber.StatusUnauthorized, "Not authenticated", "unknown subject")
		}
		return err
	}
	out, err := s.issue(a, false)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// callback completes a provider sign in. The emulated provider code is the base58 encoded account email.
func (s *Server) callback(c *fiber.Ctx) error {
	code := c.Query("code")
	email, err := base58.Decode(code)
	if code == "" || err != nil {
		return s.fail(c, fiber.StatusUnauthorized, "Invalid authorization code", "")
	}
	a, err := s.accountBy(c.UserContext(), Filter{Equals: map[string]any{"email": string(email)}})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(c, fiber.StatusUnauthorized, "Invalid authorization code", "")
		}
		return err
	}
	out, err := s.issue(a, true)
	if err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("emulator signed in %s with provider %s", a.Email, c.Params("provider")))
	return c.JSON(out)
}

func (s *Server) logout(c *fiber.Ctx) error {
	claims, _ := c.Locals(claimsKey).(*session.Claims)
	if claims != nil {
		s.tokenMux.Lock()
		delete(s.live, claims.ID)
		s.tokenMux.Unlock()
	}
	return c.JSON(removed{Message: "Signed out", Code: fiber.StatusOK})
}

func (s *Server) updateAccount(c *fiber.Ctx) error {
	claims, _ := c.Locals(claimsKey).(*session.Claims)
	id := c.Params("id")
	if claims == nil || claims.Subject != id {
		return s.fail(c, fiber.StatusForbidden, "Not authorized", "")
	}
	doc, err := decodeDocument(c.Body())
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	s.writeMux.Lock()
	defer s.writeMux.Unlock()

	rec, err := s.repo.Get(ctx, userCollection, id)
	if err != nil {
		return err
	}
	old, err := decodeDocument(rec.Body)
	if err != nil {
		return err
	}
	next := make(document, len(old))
	for k, v := range old {
		next[k] = v
	}
	delete(next, "password")
	for _, field := range []string{"name", "email", "locale", "password"} {
		if v, ok := doc[field]; ok {
			next[field] = v
		}
	}
	if err := s.prepareUser(ctx, next, old); err != nil {
		return err
	}
	rec.Body, err = json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.repo.Replace(ctx, userCollection, rec); err != nil {
		return err
	}
	var a account
	if err := json.Unmarshal(rec.Body, &a); err != nil {
		return err
	}
	out, err := s.issue(a, true)
	if err != nil {
		return err
	}
	return c.JSON(out)
}
