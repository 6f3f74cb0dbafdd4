// Package auth drives the Microsoft/Xbox Live/Minecraft OAuth2 login chain
// (C5 AuthFlow), the loopback redirect receiver (C6), and the in-memory
// account registry with obfuscated on-disk persistence (C7 AccountStore).
// Grounded on original_source/mc_launcher_core/src/account.rs
// (oauth2_login/get_access_token/refresh/listen) and
// original_source/src-tauri/src/login.rs (LoginState's bookkeeping rules).
package auth

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"mc-launcher-engine/internal/apperr"
)

// AccountInfo is one logged-in (or failed) account, per spec.md §3.
// IsValid holds iff the four credential fields were obtained from a
// successful login.
type AccountInfo struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	RefreshToken    string `json:"refresh_token"`
	AccessToken     string `json:"access_token"`
	LastRefreshUnix int64  `json:"last_refresh_unix"`
	IsValid         bool   `json:"is_valid"`
}

// AccountStore is a mapping uuid -> AccountInfo plus a designated active
// account (spec.md §3/§4.7). Mutation is behind a single mutex held only
// for the duration of the in-process update — no suspension points inside
// the lock, matching the engine's shared-resource policy (spec.md §5).
type AccountStore struct {
	mu         sync.Mutex
	accounts   map[string]AccountInfo
	activeUUID string

	// DownloadChunkSize/DownloadParallelsCount round-trip through the
	// persisted file alongside accounts (spec.md §4.7 persistence format)
	// even though the queue itself owns its own runtime configuration via
	// config.ConfigManager; these fields exist purely for on-disk
	// compatibility with the source format.
	DownloadChunkSize      int64
	DownloadParallelsCount uint32
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]AccountInfo)}
}

// Insert upserts an account. When the store was empty, the inserted account
// auto-becomes active (spec.md §4.7).
func (s *AccountStore) Insert(info AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasEmpty := len(s.accounts) == 0
	s.accounts[info.UUID] = info
	if wasEmpty {
		s.activeUUID = info.UUID
	}
}

// Remove deletes uuid. If it was active, active moves to any remaining
// entry, or empty when none remain (spec.md §3's invariant).
func (s *AccountStore) Remove(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, uuid)
	if s.activeUUID == uuid {
		s.activeUUID = ""
		for remaining := range s.accounts {
			s.activeUUID = remaining
			break
		}
	}
}

// SetActive marks uuid as active if present, per the command surface's
// set_active(uuid) (spec.md §6).
func (s *AccountStore) SetActive(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[uuid]; !ok {
		return false
	}
	s.activeUUID = uuid
	return true
}

// GetActive returns the active account's uuid, or "" if the store is empty.
func (s *AccountStore) GetActive() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeUUID
}

// Get returns a copy of the account for uuid.
func (s *AccountStore) Get(uuid string) (AccountInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.accounts[uuid]
	return info, ok
}

// List returns a snapshot of every stored account.
func (s *AccountStore) List() []AccountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AccountInfo, 0, len(s.accounts))
	for _, info := range s.accounts {
		out = append(out, info)
	}
	return out
}

// Refresh replaces the stored account's tokens with the result of a refresh
// flow; AccountInfo objects are otherwise only ever created by AuthFlow
// (spec.md §3 lifecycle summary: "mutated only by refresh").
func (s *AccountStore) Refresh(uuid string, newRefreshToken, newAccessToken string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.accounts[uuid]
	if !ok {
		return false
	}
	info.RefreshToken = newRefreshToken
	info.AccessToken = newAccessToken
	info.LastRefreshUnix = at.Unix()
	s.accounts[uuid] = info
	return true
}

// persistedStore is the on-disk JSON shape (spec.md §6 "Persistent state").
type persistedStore struct {
	Accounts               []AccountInfo `json:"accounts"`
	DownloadChunkSize      int64         `json:"download_chunk_size"`
	DownloadParallelsCount uint32        `json:"download_parallels_count"`
}

// Save writes the store to path. refresh_token and access_token are
// obfuscated with the fixed-key cipher before being written, per spec.md
// §4.7/§9.
func (s *AccountStore) Save(path string) error {
	s.mu.Lock()
	accounts := make([]AccountInfo, 0, len(s.accounts))
	for _, info := range s.accounts {
		info.RefreshToken = encryptToken(info.RefreshToken)
		info.AccessToken = encryptToken(info.AccessToken)
		accounts = append(accounts, info)
	}
	doc := persistedStore{
		Accounts:               accounts,
		DownloadChunkSize:      s.DownloadChunkSize,
		DownloadParallelsCount: s.DownloadParallelsCount,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Parse, "auth.AccountStore.Save", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return apperr.Wrap(apperr.FilesystemIO, "auth.AccountStore.Save", err)
	}
	return nil
}

// Load reads path and replaces the store's contents. Token fields are
// decrypted with the fixed-key cipher; if decryption fails the raw field is
// used as-is, a deliberate backward-compatibility path for stores written
// before obfuscation was added (spec.md §4.7/§9).
func (s *AccountStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.FilesystemIO, "auth.AccountStore.Load", err)
	}

	var doc persistedStore
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.Wrap(apperr.Parse, "auth.AccountStore.Load", err)
	}

	accounts := make(map[string]AccountInfo, len(doc.Accounts))
	for _, info := range doc.Accounts {
		info.RefreshToken = decryptToken(info.RefreshToken)
		info.AccessToken = decryptToken(info.AccessToken)
		accounts[info.UUID] = info
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.DownloadChunkSize = doc.DownloadChunkSize
	s.DownloadParallelsCount = doc.DownloadParallelsCount
	s.activeUUID = ""
	for uuid := range accounts {
		s.activeUUID = uuid
		break
	}
	return nil
}
