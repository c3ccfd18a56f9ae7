package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/agavecli/agsync/internal/config"
	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/agavecli/agsync/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger
	debugTransport *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "agsync",
	Short: "Mirror files between remote storage systems and the local filesystem",
	Long: `agsync transfers files and directory trees between Agave storage
systems and the local filesystem. Downloads are atomic and verified,
re-runs skip files that are already current, and a failed item never
aborts the rest of the run.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		if globalFlags.Config != "" {
			config.SetConfigFile(globalFlags.Config)
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose || globalFlags.Debug {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		var err error
		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "", "Credential profile to use")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Log HTTP traffic for troubleshooting")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.DryRun, "dry-run", false, "Show what would be transferred without writing anything")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != "" &&
		globalFlags.OutputFormat != types.OutputFormatJSON &&
		globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

// exitError carries a specific process exit code out of a command
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// Execute runs the root command and exits the process with the
// command's exit code
func Execute() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Close()
	}
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(utils.ExitUnknown)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	if logger == nil {
		return logging.NewNoOpLogger()
	}
	return logger
}

// newFormatter builds the output formatter from flags and config defaults
func newFormatter(cfg *config.Config) *config.OutputFormatter {
	format := globalFlags.OutputFormat
	if format == "" {
		format = types.OutputFormatJSON
		if cfg != nil {
			format = cfg.DefaultOutputFormat
		}
	}
	color := cfg == nil || cfg.ColorOutput
	return config.NewOutputFormatter(config.OutputOptions{
		Format:      format,
		Quiet:       globalFlags.Quiet,
		Verbose:     globalFlags.Verbose,
		ColorOutput: color,
	})
}

// fail writes the structured error envelope and maps the error to the
// process exit code
func fail(out *config.OutputFormatter, command string, err error) error {
	var appErr *utils.AppError
	var cliErr types.CLIError
	if errors.As(err, &appErr) {
		cliErr = appErr.CLIError
	} else {
		cliErr = utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
	}
	_ = out.WriteError(command, cliErr)
	return &exitError{code: utils.GetExitCode(cliErr.Code)}
}

// failInvalid is shorthand for argument validation failures
func failInvalid(out *config.OutputFormatter, command, message string) error {
	return fail(out, command, utils.NewAppError(
		utils.NewCLIError(utils.ErrCodeInvalidArgument, message).Build()))
}
