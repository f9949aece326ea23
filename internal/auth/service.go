// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/store"
)

// Login failure modes. All credential problems collapse to
// ErrInvalidCredentials so responses cannot be used for username probing.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// Service authenticates users against the store.
type Service struct {
	store   *store.Store
	jwt     *JWTManager
	lockout *LockoutManager
}

// NewService wires the authentication service.
func NewService(st *store.Store, jwt *JWTManager, lockout *LockoutManager) *Service {
	return &Service{store: st, jwt: jwt, lockout: lockout}
}

// Login verifies credentials and issues a bearer token. Lockout is checked
// before the password so locked accounts cannot be probed, and bcrypt runs
// even for unknown usernames to keep timing uniform. The disabled state is
// disclosed only after the password verifies, so it is visible solely to
// callers already holding the credentials.
func (s *Service) Login(req *models.LoginRequest) (*models.LoginResponse, error) {
	if locked, remaining := s.lockout.IsLocked(req.Username); locked {
		logging.Warn().Str("username", req.Username).
			Dur("remaining", remaining).
			Msg("Login rejected: account locked")
		return nil, ErrAccountLocked
	}

	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time to a real bcrypt check
			VerifyPassword("$2a$12$000000000000000000000uGyUvPeUfEOAbsnW3e3lKncGUrlVOG2y", req.Password)
			s.lockout.RecordFailure(req.Username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, req.Password) {
		s.lockout.RecordFailure(req.Username)
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrAccountDisabled
	}

	s.lockout.RecordSuccess(req.Username)

	token, expiresAt, err := s.jwt.GenerateToken(user.ID, user.Username, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	if err := s.store.TouchUserLogin(user.ID, time.Now()); err != nil {
		logging.Error().Err(err).Str("user_id", user.ID).Msg("Failed to record login time")
	}

	logging.Info().Str("username", user.Username).Msg("User logged in")
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
