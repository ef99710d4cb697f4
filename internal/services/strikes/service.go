package strikes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

// Store is the persistence contract for the ledger. The *WithEvent methods
// commit the counter mutation and the audit row in one atomic unit.
type Store interface {
	IncrementWithEvent(ctx context.Context, groupID, userID string, payload json.RawMessage, now time.Time) (int, error)
	AddWithEvent(ctx context.Context, groupID, userID string, amount int, payload json.RawMessage, now time.Time) (int, error)
	RemoveWithEvent(ctx context.Context, groupID, userID string, amount int, payload json.RawMessage, now time.Time) (int, error)
	SetWithEvent(ctx context.Context, groupID, userID string, count int, payload json.RawMessage, now time.Time) (int, error)
	Get(ctx context.Context, groupID, userID string) (model.StrikeRecord, error)
	ResetIfStale(ctx context.Context, groupID, userID string, cutoff time.Time) (bool, error)
	Reset(ctx context.Context, groupID, userID string) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// RecordStrike credits one confirmed violation to the user and appends the
// violation event in the same atomic unit. Accepts either the enhanced
// violation payload or the legacy flat payload.
func (s *Service) RecordStrike(ctx context.Context, groupID, userID string, violation model.Payload) (int, error) {
	if err := validateKeys(groupID, userID); err != nil {
		return 0, err
	}
	if s.store == nil {
		return 0, fmt.Errorf("strike store is nil")
	}

	switch violation.(type) {
	case model.ViolationPayload, model.LegacyAutoPayload:
	default:
		return 0, ErrValidation
	}

	payload, err := model.EncodePayload(violation)
	if err != nil {
		return 0, err
	}

	return s.store.IncrementWithEvent(ctx, groupID, userID, payload, s.now().UTC())
}

// AddStrikes applies a manual positive adjustment on behalf of an admin.
func (s *Service) AddStrikes(ctx context.Context, groupID, userID string, amount int, admin model.AdminRef, reason string) (int, error) {
	if err := validateKeys(groupID, userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrValidation
	}
	if s.store == nil {
		return 0, fmt.Errorf("strike store is nil")
	}

	payload, err := model.EncodePayload(model.ManualStrikePayload{
		Type:   enums.EventManualStrikeAdd,
		Admin:  admin,
		Amount: amount,
		Reason: reason,
	})
	if err != nil {
		return 0, err
	}

	return s.store.AddWithEvent(ctx, groupID, userID, amount, payload, s.now().UTC())
}

// RemoveStrike applies a manual negative adjustment, clamped at zero.
func (s *Service) RemoveStrike(ctx context.Context, groupID, userID string, amount int, admin model.AdminRef, reason string) (int, error) {
	if err := validateKeys(groupID, userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrValidation
	}
	if s.store == nil {
		return 0, fmt.Errorf("strike store is nil")
	}

	payload, err := model.EncodePayload(model.ManualStrikePayload{
		Type:   enums.EventManualStrikeRemove,
		Admin:  admin,
		Amount: amount,
		Reason: reason,
	})
	if err != nil {
		return 0, err
	}

	return s.store.RemoveWithEvent(ctx, groupID, userID, amount, payload, s.now().UTC())
}

// SetStrikes writes an absolute count. Zero clears the last-strike timestamp,
// anything positive stamps it with now.
func (s *Service) SetStrikes(ctx context.Context, groupID, userID string, count int, admin model.AdminRef, reason string) (int, error) {
	if err := validateKeys(groupID, userID); err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, ErrValidation
	}
	if s.store == nil {
		return 0, fmt.Errorf("strike store is nil")
	}

	payload, err := model.EncodePayload(model.ManualStrikePayload{
		Type:   enums.EventManualStrikeSet,
		Admin:  admin,
		Count:  count,
		Reason: reason,
	})
	if err != nil {
		return 0, err
	}

	return s.store.SetWithEvent(ctx, groupID, userID, count, payload, s.now().UTC())
}

// GetStrikes reads the record, lazily expiring it first: when the group's
// expiration window is enabled and the last strike is older than the window,
// the record is zeroed before it is returned. Callers must not treat this as
// a pure read.
func (s *Service) GetStrikes(ctx context.Context, groupID, userID string, expirationDays int) (model.StrikeRecord, error) {
	if err := validateKeys(groupID, userID); err != nil {
		return model.StrikeRecord{}, err
	}
	if s.store == nil {
		return model.StrikeRecord{}, fmt.Errorf("strike store is nil")
	}

	record, err := s.store.Get(ctx, groupID, userID)
	if err != nil {
		return model.StrikeRecord{}, err
	}

	now := s.now().UTC()
	if !record.Expired(expirationDays, now) {
		return record, nil
	}

	cutoff := now.Add(-time.Duration(expirationDays) * 24 * time.Hour)
	reset, err := s.store.ResetIfStale(ctx, groupID, userID, cutoff)
	if err != nil {
		return model.StrikeRecord{}, err
	}
	if reset {
		return model.StrikeRecord{GroupID: groupID, UserID: userID}, nil
	}

	// A concurrent writer refreshed the record between the read and the
	// conditional reset; re-read the authoritative state.
	return s.store.Get(ctx, groupID, userID)
}

// Reset gives the user a fresh start after an expulsion.
func (s *Service) Reset(ctx context.Context, groupID, userID string) error {
	if err := validateKeys(groupID, userID); err != nil {
		return err
	}
	if s.store == nil {
		return fmt.Errorf("strike store is nil")
	}
	return s.store.Reset(ctx, groupID, userID)
}

func validateKeys(groupID, userID string) error {
	if strings.TrimSpace(groupID) == "" || strings.TrimSpace(userID) == "" {
		return ErrValidation
	}
	return nil
}
