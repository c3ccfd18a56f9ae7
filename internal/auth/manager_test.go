package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	agtest "github.com/agavecli/agsync/internal/testing"
	"github.com/agavecli/agsync/internal/utils"
)

func TestLoadMissingCache(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "current"), "default")
	_, err := m.Load()
	if err == nil {
		t.Fatal("missing cache did not error")
	}
	if !utils.IsCode(err, utils.ErrCodeAuthRequired) {
		t.Errorf("error code = %s, want %s", utils.ErrorCode(err), utils.ErrCodeAuthRequired)
	}
}

func TestNeedsRefresh(t *testing.T) {
	m := NewManager("", "default")
	now := time.Now()

	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{
			name:  "valid for an hour",
			creds: Credentials{ExpiresAt: now.Add(time.Hour).Format(time.RFC3339)},
			want:  false,
		},
		{
			name:  "inside the refresh buffer",
			creds: Credentials{ExpiresAt: now.Add(time.Minute).Format(time.RFC3339)},
			want:  true,
		},
		{
			name:  "already expired",
			creds: Credentials{ExpiresAt: now.Add(-time.Hour).Format(time.RFC3339)},
			want:  true,
		},
		{
			name:  "unknown expiry with refresh token",
			creds: Credentials{RefreshToken: "refresh"},
			want:  true,
		},
		{
			name:  "unknown expiry without refresh token",
			creds: Credentials{},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.NeedsRefresh(&tt.creds); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPClientSendsBearerToken(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	server.AddDir("storage", "/data")

	m := NewManager(filepath.Join(t.TempDir(), "current"), "default")
	creds := &Credentials{
		BaseURL:     server.URL(),
		AccessToken: "tok123",
		ExpiresAt:   time.Now().Add(time.Hour).Format(time.RFC3339),
	}

	client := m.HTTPClient(context.Background(), creds)
	resp, err := client.Get(server.URL() + utils.FilesListingsPrefix + "/storage/data")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	headers := server.AuthHeaders()
	if len(headers) == 0 {
		t.Fatal("no Authorization header seen")
	}
	if headers[0] != "Bearer tok123" {
		t.Errorf("Authorization = %q", headers[0])
	}
}

func TestTokenRefreshPersistsCache(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != utils.TokenPath {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil || r.FormValue("grant_type") != "refresh_token" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "key123" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "newtok",
			"refresh_token": "newrefresh",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	cachePath := filepath.Join(t.TempDir(), "current")
	creds := &Credentials{
		BaseURL:      tokenServer.URL,
		APIKey:       "key123",
		APISecret:    "secret123",
		AccessToken:  "staletok",
		RefreshToken: "refresh123",
		CreatedAt:    "1000000000",
		ExpiresIn:    "3600",
	}
	if err := SaveCache(cachePath, creds); err != nil {
		t.Fatal(err)
	}

	m := NewManager(cachePath, "default")
	token, err := m.TokenSource(context.Background(), creds).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.AccessToken != "newtok" {
		t.Errorf("access token = %q, want newtok", token.AccessToken)
	}

	saved, err := LoadCache(cachePath)
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	if saved.AccessToken != "newtok" || saved.RefreshToken != "newrefresh" {
		t.Errorf("persisted cache = %+v", saved)
	}
	if saved.ExpiresAt == "" || saved.CreatedAt != "" {
		t.Errorf("persisted expiry fields = expiresAt %q createdAt %q", saved.ExpiresAt, saved.CreatedAt)
	}
}

func TestTokenSourceWithoutClientIsStatic(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "current"), "default")
	creds := &Credentials{
		BaseURL:     "https://agave.example.com",
		AccessToken: "tok123",
	}
	token, err := m.TokenSource(context.Background(), creds).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.AccessToken != "tok123" {
		t.Errorf("access token = %q", token.AccessToken)
	}
}

func TestTokenRefreshFailureIsAuthExpired(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	m := NewManager(filepath.Join(t.TempDir(), "current"), "default")
	creds := &Credentials{
		BaseURL:      tokenServer.URL,
		APIKey:       "key123",
		APISecret:    "secret123",
		AccessToken:  "staletok",
		RefreshToken: "badrefresh",
		CreatedAt:    "1000000000",
		ExpiresIn:    "3600",
	}
	_, err := m.TokenSource(context.Background(), creds).Token()
	if err == nil {
		t.Fatal("refresh against failing endpoint did not error")
	}
	if !utils.IsCode(err, utils.ErrCodeAuthExpired) {
		t.Errorf("error code = %s, want %s", utils.ErrorCode(err), utils.ErrCodeAuthExpired)
	}
	if !strings.Contains(err.Error(), "re-authenticate") {
		t.Errorf("error message = %q", err)
	}
}
