package usecase

import (
	"context"
	"time"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/registry"
)

// Rotation strategy names.
const (
	RotationImmediate   = "immediate"
	RotationGracePeriod = "grace_period"
	RotationDualValid   = "dual_valid"
)

// immediateRotation revokes the old token as part of the rotation.
type immediateRotation struct {
	repo TokenRepository
	now  func() time.Time
}

// NewImmediateRotation creates the strategy that revokes the old token at once.
func NewImmediateRotation(repo TokenRepository, now func() time.Time) RotationStrategy {
	return &immediateRotation{repo: repo, now: now}
}

func (s *immediateRotation) Name() string { return RotationImmediate }

func (s *immediateRotation) Rotate(ctx context.Context, oldToken, _ *domain.Token) error {
	_, err := revokeAt(ctx, s.repo, []*domain.Token{oldToken}, s.now())
	return err
}

func (s *immediateRotation) IsOldTokenValid(*domain.Token) bool {
	return false
}

func (s *immediateRotation) GracePeriodMinutes() (int, bool) {
	return 0, false
}

// gracePeriodRotation keeps the old token valid until rotated_at + grace.
// The end of the window is stored as a scheduled revocation.
type gracePeriodRotation struct {
	repo    TokenRepository
	now     func() time.Time
	minutes int
}

// NewGracePeriodRotation creates the strategy that lets the old token overlap the new one.
func NewGracePeriodRotation(repo TokenRepository, now func() time.Time, minutes int) RotationStrategy {
	return &gracePeriodRotation{repo: repo, now: now, minutes: minutes}
}

func (s *gracePeriodRotation) Name() string { return RotationGracePeriod }

func (s *gracePeriodRotation) grace() time.Duration {
	return time.Duration(s.minutes) * time.Minute
}

func (s *gracePeriodRotation) Rotate(ctx context.Context, oldToken, _ *domain.Token) error {
	rotatedAt := s.now()
	if oldToken.RotatedAt != nil {
		rotatedAt = *oldToken.RotatedAt
	}
	_, err := revokeAt(ctx, s.repo, []*domain.Token{oldToken}, rotatedAt.Add(s.grace()))
	return err
}

func (s *gracePeriodRotation) IsOldTokenValid(oldToken *domain.Token) bool {
	now := s.now()
	if oldToken.RotatedAt != nil && !now.Before(oldToken.RotatedAt.Add(s.grace())) {
		return false
	}
	return oldToken.IsValidAt(now)
}

func (s *gracePeriodRotation) GracePeriodMinutes() (int, bool) {
	return s.minutes, true
}

// dualValidRotation leaves both tokens valid until one is revoked explicitly.
type dualValidRotation struct {
	now func() time.Time
}

// NewDualValidRotation creates the strategy that never revokes the old token.
func NewDualValidRotation(now func() time.Time) RotationStrategy {
	return &dualValidRotation{now: now}
}

func (s *dualValidRotation) Name() string { return RotationDualValid }

func (s *dualValidRotation) Rotate(context.Context, *domain.Token, *domain.Token) error {
	return nil
}

func (s *dualValidRotation) IsOldTokenValid(oldToken *domain.Token) bool {
	return oldToken.IsValidAt(s.now())
}

func (s *dualValidRotation) GracePeriodMinutes() (int, bool) {
	return 0, false
}

// RotationConfig configures the built-in rotation strategies.
type RotationConfig struct {
	DefaultStrategy    string
	GracePeriodMinutes int
}

// NewRotationRegistry registers the built-in rotation strategies.
func NewRotationRegistry(
	repo TokenRepository,
	now func() time.Time,
	cfg RotationConfig,
) (*registry.Registry[RotationStrategy], error) {
	strategies := registry.New[RotationStrategy]("rotation strategy")
	strategies.Register(RotationImmediate, NewImmediateRotation(repo, now))
	strategies.Register(RotationGracePeriod, NewGracePeriodRotation(repo, now, cfg.GracePeriodMinutes))
	strategies.Register(RotationDualValid, NewDualValidRotation(now))

	if cfg.DefaultStrategy != "" {
		if err := strategies.SetDefault(cfg.DefaultStrategy); err != nil {
			return nil, err
		}
	}
	return strategies, nil
}
