package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccountStoreInsertAutoActivatesFirst(t *testing.T) {
	s := NewAccountStore()
	s.Insert(AccountInfo{UUID: "a", Name: "Alice"})
	require.Equal(t, "a", s.GetActive())

	s.Insert(AccountInfo{UUID: "b", Name: "Bob"})
	require.Equal(t, "a", s.GetActive(), "second insert must not steal active")
}

func TestAccountStoreRemoveActiveReassigns(t *testing.T) {
	s := NewAccountStore()
	s.Insert(AccountInfo{UUID: "a"})
	s.Insert(AccountInfo{UUID: "b"})
	s.Remove("a")

	require.Equal(t, "b", s.GetActive())
	_, ok := s.Get("a")
	require.False(t, ok)
}

func TestAccountStoreRemoveActiveLastClearsActive(t *testing.T) {
	s := NewAccountStore()
	s.Insert(AccountInfo{UUID: "a"})
	s.Remove("a")
	require.Equal(t, "", s.GetActive())
}

func TestAccountStoreSetActiveRejectsUnknown(t *testing.T) {
	s := NewAccountStore()
	s.Insert(AccountInfo{UUID: "a"})
	require.False(t, s.SetActive("ghost"))
	require.True(t, s.SetActive("a"))
}

func TestAccountStoreRefreshUpdatesTokens(t *testing.T) {
	s := NewAccountStore()
	s.Insert(AccountInfo{UUID: "a", RefreshToken: "old-r", AccessToken: "old-a"})
	ok := s.Refresh("a", "new-r", "new-a", time.Unix(1000, 0))
	require.True(t, ok)

	info, _ := s.Get("a")
	require.Equal(t, "new-r", info.RefreshToken)
	require.Equal(t, "new-a", info.AccessToken)
	require.Equal(t, int64(1000), info.LastRefreshUnix)
}

func TestAccountStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewAccountStore()
	s.DownloadChunkSize = 1 << 20
	s.DownloadParallelsCount = 4
	s.Insert(AccountInfo{
		UUID:         "a",
		Name:         "Alice",
		RefreshToken: "refresh-secret",
		AccessToken:  "access-secret",
		IsValid:      true,
	})

	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, s.Save(path))

	loaded := NewAccountStore()
	require.NoError(t, loaded.Load(path))

	info, ok := loaded.Get("a")
	require.True(t, ok)
	require.Equal(t, "refresh-secret", info.RefreshToken)
	require.Equal(t, "access-secret", info.AccessToken)
	require.True(t, info.IsValid)
	require.Equal(t, int64(1<<20), loaded.DownloadChunkSize)
	require.Equal(t, uint32(4), loaded.DownloadParallelsCount)
	require.Equal(t, "a", loaded.GetActive())
}

func TestAccountStoreLoadTreatsPlaintextAsBackwardCompatible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	raw := `{"accounts":[{"uuid":"a","name":"Alice","refresh_token":"plain-refresh","access_token":"plain-access","last_refresh_unix":0,"is_valid":true}],"download_chunk_size":0,"download_parallels_count":0}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s := NewAccountStore()
	require.NoError(t, s.Load(path))

	info, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "plain-refresh", info.RefreshToken)
	require.Equal(t, "plain-access", info.AccessToken)
}

func TestEncryptDecryptTokenRoundTrip(t *testing.T) {
	encrypted := encryptToken("hello-token")
	require.NotEqual(t, "hello-token", encrypted)
	require.Equal(t, "hello-token", decryptToken(encrypted))
}

func TestDecryptTokenFallsBackOnGarbage(t *testing.T) {
	require.Equal(t, "not-base64-or-cipher", decryptToken("not-base64-or-cipher"))
}
