package config

import (
	"crypto/rand"
	"encoding/hex"
	"mc-launcher-engine/internal/storage"
	"strconv"
)

// Keys for AppSettings in DB
const (
	KeyEnableControlServer  = "enable_control_server"
	KeyControlServerToken   = "control_server_token"
	KeyEnableIntegrityCheck = "enable_integrity_check"
	KeyControlServerPort    = "control_server_port"
	KeyDownloadParallelism  = "download_parallelism"
	KeyDownloadChunkSize    = "download_chunk_size"
	KeyBandwidthLimitBps    = "bandwidth_limit_bps"
	KeyOAuthClientID        = "oauth_client_id"
	KeyUserAgent            = "user_agent"
)

// ConfigManager exposes typed getters/setters over the storage settings
// table, generating a control-server token on first use.
type ConfigManager struct {
	storage *storage.Storage
}

func NewConfigManager(s *storage.Storage) *ConfigManager {
	return &ConfigManager{storage: s}
}

func (c *ConfigManager) GetControlServerPort() int {
	valStr, err := c.storage.GetString(KeyControlServerPort)
	if err != nil || valStr == "" {
		return 4444
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 4444
	}
	return val
}

func (c *ConfigManager) SetControlServerPort(port int) error {
	return c.storage.SetString(KeyControlServerPort, strconv.Itoa(port))
}

func (c *ConfigManager) GetDownloadParallelism() int {
	valStr, err := c.storage.GetString(KeyDownloadParallelism)
	if err != nil || valStr == "" {
		return 8
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return 8
	}
	return val
}

func (c *ConfigManager) SetDownloadParallelism(n int) error {
	return c.storage.SetString(KeyDownloadParallelism, strconv.Itoa(n))
}

func (c *ConfigManager) GetDownloadChunkSize() int64 {
	valStr, err := c.storage.GetString(KeyDownloadChunkSize)
	if err != nil || valStr == "" {
		return 4 * 1024 * 1024
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil || val <= 0 {
		return 4 * 1024 * 1024
	}
	return val
}

func (c *ConfigManager) SetDownloadChunkSize(bytes int64) error {
	return c.storage.SetString(KeyDownloadChunkSize, strconv.FormatInt(bytes, 10))
}

// GetBandwidthLimitBps returns the configured cap in bytes/sec, 0 = unlimited.
func (c *ConfigManager) GetBandwidthLimitBps() int {
	valStr, err := c.storage.GetString(KeyBandwidthLimitBps)
	if err != nil || valStr == "" {
		return 0
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0
	}
	return val
}

func (c *ConfigManager) SetBandwidthLimitBps(bps int) error {
	return c.storage.SetString(KeyBandwidthLimitBps, strconv.Itoa(bps))
}

// GetOAuthClientID returns an override client id, or "" to use the engine default.
func (c *ConfigManager) GetOAuthClientID() string {
	val, err := c.storage.GetString(KeyOAuthClientID)
	if err != nil {
		return ""
	}
	return val
}

func (c *ConfigManager) SetOAuthClientID(id string) error {
	return c.storage.SetString(KeyOAuthClientID, id)
}

func (c *ConfigManager) GetEnableControlServer() bool {
	val, err := c.storage.GetString(KeyEnableControlServer)
	if err != nil {
		return false
	}
	return val == "true"
}

func (c *ConfigManager) SetEnableControlServer(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyEnableControlServer, val)
}

func (c *ConfigManager) GetControlServerToken() string {
	val, err := c.storage.GetString(KeyControlServerToken)
	if err != nil || val == "" {
		token := generateSecureToken()
		c.storage.SetString(KeyControlServerToken, token)
		return token
	}
	return val
}

func (c *ConfigManager) GetEnableIntegrityCheck() bool {
	val, err := c.storage.GetString(KeyEnableIntegrityCheck)
	if err != nil {
		return true // Default True
	}
	return val != "false"
}

func (c *ConfigManager) SetEnableIntegrityCheck(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyEnableIntegrityCheck, val)
}

func generateSecureToken() string {
	b := make([]byte, 16) // 16 bytes = 32 hex chars
	if _, err := rand.Read(b); err != nil {
		return "engine-fallback-token-change-me"
	}
	return hex.EncodeToString(b)
}

// GetUserAgent returns the custom User-Agent string.
// Returns empty string if not set (caller should use default)
func (c *ConfigManager) GetUserAgent() string {
	val, err := c.storage.GetString(KeyUserAgent)
	if err != nil {
		return ""
	}
	return val
}

// SetUserAgent stores a custom User-Agent string
func (c *ConfigManager) SetUserAgent(ua string) error {
	return c.storage.SetString(KeyUserAgent, ua)
}

// FactoryReset resets all configuration to defaults
func (c *ConfigManager) FactoryReset() error {
	keys := []string{
		KeyEnableControlServer,
		KeyControlServerToken,
		KeyEnableIntegrityCheck,
		KeyControlServerPort,
		KeyDownloadParallelism,
		KeyDownloadChunkSize,
		KeyBandwidthLimitBps,
		KeyOAuthClientID,
		KeyUserAgent,
	}

	for _, key := range keys {
		if err := c.storage.SetString(key, ""); err != nil {
			return err
		}
	}
	return nil
}
