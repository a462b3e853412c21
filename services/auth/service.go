// Package auth guards the tracker's web surface with a single site
// password and cookie sessions backed by the database.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/auth/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

var tracer = telemetry.Tracer("costcotracker.services.auth")

type Service struct {
	db       *sql.DB
	qry      *db.Queries
	settings settings.Service
}

func NewService(database *sql.DB, settingsService settings.Service) Service {
	return Service{
		db:       database,
		qry:      db.New(database),
		settings: settingsService,
	}
}

// PasswordConfigured reports whether a site password has ever been
// set. Without one the web surface is open.
func (s Service) PasswordConfigured(ctx context.Context) (bool, error) {
	_, err := s.settings.Get(ctx, settings.KeySitePasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s Service) SetPassword(ctx context.Context, password string) error {
	ctx, span := tracer.Start(ctx, "SetPassword")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash password")
		return err
	}
	err = s.settings.Set(ctx, settings.KeySitePasswordHash, string(hash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) VerifyPassword(ctx context.Context, password string) (bool, error) {
	hash, err := s.settings.Get(ctx, settings.KeySitePasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// CreateSession mints a random session token and stores it.
func (s Service) CreateSession(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "CreateSession")
	defer span.End()

	nonce := make([]byte, 32)
	_, err := rand.Read(nonce)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate token")
		return "", err
	}
	token := hex.EncodeToString(nonce)

	now := time.Now().Unix()
	err = s.qry.CreateSession(ctx, db.CreateSessionParams{
		Token:        token,
		CreatedAt:    now,
		LastActivity: now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store session")
		return "", err
	}
	return token, nil
}

// ValidateSession checks a token and slides its expiry forward. Idle
// sessions past the configured timeout are dropped on sight.
func (s Service) ValidateSession(ctx context.Context, token string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ValidateSession")
	defer span.End()

	if token == "" {
		return false, nil
	}

	session, err := s.qry.GetSession(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	timeout, err := s.sessionTimeout(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	now := time.Now()
	if now.Unix()-session.LastActivity > int64(timeout.Seconds()) {
		err = s.qry.DeleteSession(ctx, token)
		if err != nil {
			span.RecordError(err)
		}
		return false, nil
	}

	err = s.qry.TouchSession(ctx, db.TouchSessionParams{
		LastActivity: now.Unix(),
		Token:        token,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return true, nil
}

func (s Service) DestroySession(ctx context.Context, token string) error {
	return s.qry.DeleteSession(ctx, token)
}

// CheckIpAllowed applies the configured allowlist. An empty list
// allows everyone, loopback is always allowed.
func (s Service) CheckIpAllowed(ctx context.Context, ip string) (bool, error) {
	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if len(config.IpAllowlist) == 0 {
		return true, nil
	}
	if ip == "127.0.0.1" {
		return true, nil
	}
	for _, allowed := range config.IpAllowlist {
		if ip == allowed {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpired removes sessions idle past the configured timeout.
func (s Service) CleanupExpired(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "CleanupExpired")
	defer span.End()

	timeout, err := s.sessionTimeout(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	cutoff := time.Now().Add(-timeout).Unix()
	err = s.qry.DeleteSessionsIdleBefore(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// StartCleanup sweeps idle sessions every hour until ctx is done.
func (s Service) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.CleanupExpired(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "session cleanup failed", "error", err)
				}
			}
		}
	}()
}

func (s Service) sessionTimeout(ctx context.Context) (time.Duration, error) {
	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	minutes := config.SessionTimeoutMinutes
	if minutes <= 0 {
		minutes = 1440
	}
	return time.Duration(minutes) * time.Minute, nil
}
