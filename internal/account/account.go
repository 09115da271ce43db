// Package account implements per-account credential and state-directory
// lifecycle, the resolution point the arbitrage engine and trading client
// both depend on instead of depending on each other directly (§9).
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// ErrNotFound is returned when an account id has no matching directory.
var ErrNotFound = errors.New("account: not found")

// ErrDefaultUndeletable is returned when a caller attempts to delete the
// default account while it is the only account left.
var ErrDefaultUndeletable = errors.New("account: default account cannot be deleted while it is the only account")

// ErrAlreadyExists is returned by Create when the id is already in use.
var ErrAlreadyExists = errors.New("account: already exists")

// Config configures a Manager.
type Config struct {
	// StateDir is the root persisted-state directory; accounts live under
	// {StateDir}/accounts/{id}/.
	StateDir string
	Logger   *zap.Logger
}

// Manager owns the on-disk account directory tree and is the single place
// in the process that reads private-key material off disk.
type Manager struct {
	mu       sync.RWMutex
	stateDir string
	logger   *zap.Logger
	accounts map[string]*types.Account
}

// New loads every existing account directory under cfg.StateDir/accounts
// and returns a ready Manager. It does not create the default account —
// callers that need one bootstrapped should call EnsureDefault.
func New(cfg *Config) (*Manager, error) {
	if cfg.StateDir == "" {
		return nil, errors.New("account: StateDir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	accountsDir := filepath.Join(cfg.StateDir, "accounts")
	if err := os.MkdirAll(accountsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create accounts dir: %w", err)
	}

	m := &Manager{
		stateDir: cfg.StateDir,
		logger:   logger,
		accounts: make(map[string]*types.Account),
	}

	entries, err := os.ReadDir(accountsDir)
	if err != nil {
		return nil, fmt.Errorf("read accounts dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		acct, err := readMetadata(m.metadataPath(e.Name()))
		if err != nil {
			logger.Warn("account-metadata-unreadable", zap.String("account-id", e.Name()), zap.Error(err))
			continue
		}
		m.accounts[acct.ID] = acct
	}

	logger.Info("account-manager-loaded", zap.Int("count", len(m.accounts)))
	return m, nil
}

func (m *Manager) accountDir(id string) string {
	return filepath.Join(m.stateDir, "accounts", id)
}

func (m *Manager) metadataPath(id string) string {
	return filepath.Join(m.accountDir(id), "account.json")
}

func (m *Manager) setupPath(id string) string {
	return filepath.Join(m.accountDir(id), "setup.json")
}

// List returns every known account, in no particular order.
func (m *Manager) List() []*types.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Get returns the metadata for a single account.
func (m *Manager) Get(id string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Create provisions a new account directory with its metadata and
// credential setup, both written atomically and the latter at 0o600.
func (m *Manager) Create(id, name string, setup types.AccountSetup) (*types.Account, error) {
	if id == "" {
		return nil, errors.New("account: id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[id]; exists {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	acct := &types.Account{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	dir := m.accountDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create account dir: %w", err)
	}

	if err := writeJSONAtomic(m.metadataPath(id), acct, 0o644); err != nil {
		return nil, fmt.Errorf("write account metadata: %w", err)
	}
	if err := writeJSONAtomic(m.setupPath(id), &setup, 0o600); err != nil {
		return nil, fmt.Errorf("write account setup: %w", err)
	}

	m.accounts[id] = acct
	m.logger.Info("account-created", zap.String("account-id", id))

	cp := *acct
	return &cp, nil
}

// Delete removes an account's directory, refusing to delete the default
// account while it is the only one remaining (§3).
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	if id == types.DefaultAccountID && len(m.accounts) == 1 {
		return ErrDefaultUndeletable
	}

	if err := os.RemoveAll(m.accountDir(id)); err != nil {
		return fmt.Errorf("remove account dir: %w", err)
	}
	delete(m.accounts, id)
	m.logger.Info("account-deleted", zap.String("account-id", id))
	return nil
}

// Credentials loads and returns an account's setup.json. The key material
// is read fresh from disk on every call rather than cached in memory, so a
// credential rotation (replacing setup.json) takes effect immediately.
func (m *Manager) Credentials(id string) (*types.AccountSetup, error) {
	m.mu.RLock()
	_, ok := m.accounts[id]
	path := m.setupPath(id)
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup: %w", err)
	}
	var setup types.AccountSetup
	if err := json.Unmarshal(data, &setup); err != nil {
		return nil, fmt.Errorf("parse setup: %w", err)
	}
	return &setup, nil
}

// EnsureDefault guarantees the "default" account exists, creating it from
// setup if absent. It is idempotent: calling it again with an account
// already present is a no-op and returns the existing metadata.
func (m *Manager) EnsureDefault(setup types.AccountSetup) (*types.Account, error) {
	if acct, err := m.Get(types.DefaultAccountID); err == nil {
		return acct, nil
	}
	return m.Create(types.DefaultAccountID, "default", setup)
}

func readMetadata(path string) (*types.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var acct types.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// writeJSONAtomic marshals v and writes it to path via a tmp-file-plus-
// rename so a crash mid-write never leaves a truncated account file behind
// (§5/§6 "atomic tmp+rename").
func writeJSONAtomic(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
