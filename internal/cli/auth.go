package cli

import (
	"context"
	"time"

	"github.com/agavecli/agsync/internal/auth"
	"github.com/agavecli/agsync/internal/config"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Credential management",
	Long: `Inspect and manage the credentials used to reach the storage
service. Credentials are read from the platform credential cache; the
consumer secret can be kept in the system keyring instead of on disk.`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	RunE:  runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token now",
	RunE:  runAuthRefresh,
}

var authSetSecretCmd = &cobra.Command{
	Use:   "set-secret <secret>",
	Short: "Store the consumer secret in the system keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthSetSecret,
}

var authClearSecretCmd = &cobra.Command{
	Use:   "clear-secret",
	Short: "Remove the consumer secret from the system keyring",
	RunE:  runAuthClearSecret,
}

func init() {
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authSetSecretCmd)
	authCmd.AddCommand(authClearSecretCmd)
	rootCmd.AddCommand(authCmd)
}

// authManager builds the auth manager from config and flags without
// opening an API client
func authManager() (*config.Config, *auth.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	profile := globalFlags.Profile
	if profile == "" {
		profile = cfg.DefaultProfile
	}
	cachePath := cfg.CredentialCache
	if cachePath == "" {
		if cachePath, err = auth.DefaultCachePath(); err != nil {
			return nil, nil, err
		}
	}
	return cfg, auth.NewManager(cachePath, profile), nil
}

// activeProfile resolves the profile from flags and config
func activeProfile(cfg *config.Config) string {
	if globalFlags.Profile != "" {
		return globalFlags.Profile
	}
	return cfg.DefaultProfile
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, manager, err := authManager()
	if err != nil {
		return fail(newFormatter(nil), "auth.status", err)
	}
	out := newFormatter(cfg)

	creds, err := manager.Load()
	if err != nil {
		return fail(out, "auth.status", err)
	}

	expiry := creds.Expiry()
	expiresIn := "unknown"
	if !expiry.IsZero() {
		if remaining := time.Until(expiry); remaining > 0 {
			expiresIn = remaining.Round(time.Second).String()
		} else {
			expiresIn = "expired"
		}
	}

	return out.WriteSuccess("auth.status", map[string]interface{}{
		"tenant":           creds.TenantID,
		"baseUrl":          creds.BaseURL,
		"username":         creds.Username,
		"tokenExpiresIn":   expiresIn,
		"needsRefresh":     manager.NeedsRefresh(creds),
		"canRefresh":       creds.RefreshToken != "" && creds.APIKey != "",
		"keyringAvailable": auth.NewSecretStore().Available(),
	})
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, manager, err := authManager()
	if err != nil {
		return fail(newFormatter(nil), "auth.refresh", err)
	}
	out := newFormatter(cfg)

	creds, err := manager.Load()
	if err != nil {
		return fail(out, "auth.refresh", err)
	}
	if creds.RefreshToken == "" || creds.APIKey == "" || creds.APISecret == "" {
		return fail(out, "auth.refresh", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeAuthRequired,
				"Cannot refresh: credential cache has no refresh token or client key.").Build()))
	}

	// Force a refresh by presenting an already-expired token
	expired := *creds
	expired.CreatedAt = "0"
	expired.ExpiresIn = "0"
	expired.ExpiresAt = ""
	token, err := manager.TokenSource(ctx, &expired).Token()
	if err != nil {
		return fail(out, "auth.refresh", err)
	}

	return out.WriteSuccess("auth.refresh", map[string]interface{}{
		"status":         "refreshed",
		"tokenExpiresAt": token.Expiry.Format(time.RFC3339),
	})
}

func runAuthSetSecret(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fail(newFormatter(nil), "auth.set-secret", err)
	}
	out := newFormatter(cfg)

	profile := activeProfile(cfg)
	if err := auth.NewSecretStore().SaveSecret(profile, args[0]); err != nil {
		return fail(out, "auth.set-secret", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeLocalIOError,
				"Cannot store secret in the system keyring: "+err.Error()).Build()))
	}

	out.Log("Secret stored for profile %q", profile)
	return out.WriteSuccess("auth.set-secret", map[string]interface{}{
		"profile": profile,
		"status":  "stored",
	})
}

func runAuthClearSecret(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fail(newFormatter(nil), "auth.clear-secret", err)
	}
	out := newFormatter(cfg)

	profile := activeProfile(cfg)
	if err := auth.NewSecretStore().DeleteSecret(profile); err != nil {
		return fail(out, "auth.clear-secret", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeLocalIOError,
				"Cannot remove secret from the system keyring: "+err.Error()).Build()))
	}

	out.Log("Secret cleared for profile %q", profile)
	return out.WriteSuccess("auth.clear-secret", map[string]interface{}{
		"profile": profile,
		"status":  "cleared",
	})
}
