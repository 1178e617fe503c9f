// Package store persists finished artifacts and sealed vaults. Artifacts
// and vaults are kept apart on purpose: the artifact is the auditable,
// shareable output, while the sealed vault is the re-identification side
// channel, stored encrypted and keyed by case id.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/vault"
)

var (
	// ErrStorageUnavailable marks a transient storage failure, eligible
	// for bounded retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned for lookups that matched nothing.
	ErrNotFound = errors.New("not found")
)

// ArtifactStore persists audit artifacts and supports retrieval by case.
type ArtifactStore interface {
	// Store persists the artifact and returns its location identifier.
	Store(ctx context.Context, artifact audit.Artifact) (string, error)
	// ListByCase returns all stored artifacts for a case, oldest first.
	ListByCase(ctx context.Context, caseID string) ([]audit.Artifact, error)
}

// VaultStore persists sealed vaults in the encrypted side channel.
type VaultStore interface {
	SaveSealed(ctx context.Context, sealed vault.Sealed) error
	LoadSealed(ctx context.Context, caseID string) (vault.Sealed, error)
	// DeleteSealed removes a case's sealed vault. Deleting a missing
	// vault is not an error.
	DeleteSealed(ctx context.Context, caseID string) error
}

// Memory is an in-process store used by tests and the one-shot CLI path.
type Memory struct {
	mu        sync.Mutex
	artifacts map[string]audit.Artifact // key -> artifact
	vaults    map[string]vault.Sealed
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		artifacts: map[string]audit.Artifact{},
		vaults:    map[string]vault.Sealed{},
	}
}

// Store implements ArtifactStore.
func (m *Memory) Store(_ context.Context, artifact audit.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artifact.Key()
	m.artifacts[key] = artifact
	return key, nil
}

// ListByCase implements ArtifactStore.
func (m *Memory) ListByCase(_ context.Context, caseID string) ([]audit.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Artifact
	for _, a := range m.artifacts {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.Before(out[j].GeneratedAt) })
	return out, nil
}

// SaveSealed implements VaultStore.
func (m *Memory) SaveSealed(_ context.Context, sealed vault.Sealed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaults[sealed.CaseID] = sealed
	return nil
}

// LoadSealed implements VaultStore.
func (m *Memory) LoadSealed(_ context.Context, caseID string) (vault.Sealed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sealed, ok := m.vaults[caseID]
	if !ok {
		return vault.Sealed{}, ErrNotFound
	}
	return sealed, nil
}

// DeleteSealed implements VaultStore.
func (m *Memory) DeleteSealed(_ context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vaults, caseID)
	return nil
}
