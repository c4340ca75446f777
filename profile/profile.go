package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/store"
)

const (
	ProfileStatusActive   = "active"
	ProfileStatusDisabled = "disabled"
)

// ErrProfileDisabled is returned when a disabled user attempts to take part in an exchange
var ErrProfileDisabled = errors.New("profile disabled")

// Manager manages user profiles
type Manager interface {
	CreateProfile(ctx context.Context, userKey string, name, email *string) (*credential.Profile, error)
	RetrieveProfile(ctx context.Context, userKey string) (*credential.Profile, error)
	DisableProfile(ctx context.Context, userKey string) (*credential.Profile, error)
}

// StoreManager is a Manager backed by a record store
type StoreManager struct {
	store store.RecordStore
}

// NewManager returns a Manager persisting profiles in the given store
func NewManager(store store.RecordStore) *StoreManager {
	return &StoreManager{store: store}
}

// CreateProfile creates an active profile; a user has at most one profile
func (m *StoreManager) CreateProfile(ctx context.Context, userKey string, name, email *string) (*credential.Profile, error) {
	existing, err := m.RetrieveProfile(ctx, userKey)
	if err == nil {
		return nil, fmt.Errorf("%w: profile %s already exists for user %s", credential.ErrSchema, existing.ID, userKey)
	} else if !credential.IsNotFound(err) {
		return nil, err
	}

	profile := &credential.Profile{
		UserKey: common.StringOrNil(userKey),
		Name:    name,
		Email:   email,
		Status:  common.StringOrNil(ProfileStatusActive),
	}

	err = m.store.Create(ctx, profile)
	if err != nil {
		return nil, err
	}

	common.Log.Debugf("created profile %s for user %s", profile.ID, userKey)
	return profile, nil
}

// RetrieveProfile returns the profile of the given user
func (m *StoreManager) RetrieveProfile(ctx context.Context, userKey string) (*credential.Profile, error) {
	rec, err := m.store.GetBy(ctx, credential.KindProfile, map[string]interface{}{
		"user_key": userKey,
	})
	if err != nil {
		return nil, err
	}
	return rec.(*credential.Profile), nil
}

// DisableProfile disables the profile of the given user
func (m *StoreManager) DisableProfile(ctx context.Context, userKey string) (*credential.Profile, error) {
	profile, err := m.RetrieveProfile(ctx, userKey)
	if err != nil {
		return nil, err
	}

	if common.StringValue(profile.Status) == ProfileStatusDisabled {
		return profile, nil
	}

	profile.Status = common.StringOrNil(ProfileStatusDisabled)
	err = m.store.Update(ctx, profile)
	if err != nil {
		return nil, err
	}

	common.Log.Debugf("disabled profile %s for user %s", profile.ID, userKey)
	return profile, nil
}
