package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CacheFileName is the credential cache written by the platform CLI tools
const CacheFileName = "current"

// CacheDirName is the directory holding the credential cache
const CacheDirName = ".agave"

// Credentials is the parsed credential cache for one tenant
type Credentials struct {
	TenantID     string `json:"tenantid,omitempty"`
	BaseURL      string `json:"baseurl"`
	APIKey       string `json:"apikey,omitempty"`
	APISecret    string `json:"apisecret,omitempty"`
	Username     string `json:"username,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ExpiresIn    string `json:"expires_in,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// DefaultCachePath returns ~/.agave/current
func DefaultCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, CacheDirName, CacheFileName), nil
}

// LoadCache reads the credential cache from path
func LoadCache(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("malformed credential cache %s: %w", path, err)
	}
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("credential cache %s missing baseurl", path)
	}
	return &creds, nil
}

// SaveCache writes the credential cache back to path with owner-only
// permissions
func SaveCache(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Expiry derives the access token expiry time. Zero time means unknown,
// which callers treat as expired so a refresh is attempted.
func (c *Credentials) Expiry() time.Time {
	if created, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
		if lifetime, err := strconv.ParseInt(c.ExpiresIn, 10, 64); err == nil {
			return time.Unix(created+lifetime, 0)
		}
	}
	if at, err := time.Parse(time.RFC3339, c.ExpiresAt); err == nil {
		return at
	}
	return time.Time{}
}
