package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agavecli/agsync/internal/config"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing agsync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration settings",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fail(newFormatter(nil), "config.show", err)
	}
	out := newFormatter(cfg)

	return out.WriteSuccess("config.show", cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fail(newFormatter(nil), "config.set", err)
	}
	out := newFormatter(cfg)

	key := args[0]
	value := args[1]

	switch strings.ToLower(key) {
	case "defaultprofile":
		cfg.DefaultProfile = value
	case "defaultoutputformat":
		if value != string(types.OutputFormatJSON) && value != string(types.OutputFormatTable) {
			return failInvalid(out, "config.set", "Invalid output format. Must be 'json' or 'table'")
		}
		cfg.DefaultOutputFormat = types.OutputFormat(value)
	case "credentialcache":
		cfg.CredentialCache = value
	case "cachettl":
		ttl, err := strconv.Atoi(value)
		if err != nil || ttl < 0 {
			return failInvalid(out, "config.set", "Cache TTL must be a non-negative integer")
		}
		cfg.CacheTTL = ttl
	case "concurrency":
		workers, err := strconv.Atoi(value)
		if err != nil || workers < 1 || workers > 64 {
			return failInvalid(out, "config.set", "Concurrency must be between 1 and 64")
		}
		cfg.Concurrency = workers
	case "maxretries":
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 0 || retries > 10 {
			return failInvalid(out, "config.set", "Max retries must be between 0 and 10")
		}
		cfg.MaxRetries = retries
	case "retrybasedelay":
		delay, err := strconv.Atoi(value)
		if err != nil || delay < 100 || delay > 60000 {
			return failInvalid(out, "config.set", "Retry base delay must be between 100 and 60000 ms")
		}
		cfg.RetryBaseDelay = delay
	case "requesttimeout":
		timeout, err := strconv.Atoi(value)
		if err != nil || timeout < 1 || timeout > 3600 {
			return failInvalid(out, "config.set", "Request timeout must be between 1 and 3600 seconds")
		}
		cfg.RequestTimeout = timeout
	case "verifychecksums":
		cfg.VerifyChecksums = parseBool(value)
	case "loglevel":
		validLevels := []string{"quiet", "normal", "verbose", "debug"}
		valid := false
		for _, level := range validLevels {
			if value == level {
				valid = true
				break
			}
		}
		if !valid {
			return failInvalid(out, "config.set",
				fmt.Sprintf("Invalid log level. Must be one of: %s", strings.Join(validLevels, ", ")))
		}
		cfg.LogLevel = value
	case "coloroutput":
		cfg.ColorOutput = parseBool(value)
	default:
		return failInvalid(out, "config.set", fmt.Sprintf("Unknown configuration key: %s", key))
	}

	if err := cfg.Save(); err != nil {
		return fail(out, "config.set", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeLocalIOError,
				fmt.Sprintf("Failed to save configuration: %v", err)).Build()))
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	out := newFormatter(cfg)

	if err := cfg.Save(); err != nil {
		return fail(out, "config.reset", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeLocalIOError,
				fmt.Sprintf("Failed to reset configuration: %v", err)).Build()))
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
