package cli

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/auth"
	"github.com/agavecli/agsync/internal/config"
	"github.com/agavecli/agsync/internal/logging"
	syncengine "github.com/agavecli/agsync/internal/sync"
	"github.com/agavecli/agsync/internal/sync/executor"
	"github.com/agavecli/agsync/internal/sync/index"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// historyFileName is the run-history database inside the config dir
const historyFileName = "history.db"

// historyKeep bounds how many runs the history database retains
const historyKeep = 50

// session wires configuration, credentials and the API client together
// for one command invocation
type session struct {
	cfg     *config.Config
	creds   *auth.Credentials
	manager *auth.Manager
	client  *api.Client
	profile string
}

// newSession loads config and credentials and builds an authenticated
// API client
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	profile := globalFlags.Profile
	if profile == "" {
		profile = cfg.DefaultProfile
	}

	cachePath := cfg.CredentialCache
	if cachePath == "" {
		if cachePath, err = auth.DefaultCachePath(); err != nil {
			return nil, err
		}
	}

	manager := auth.NewManager(cachePath, profile)
	creds, err := manager.Load()
	if err != nil {
		return nil, err
	}

	if debugTransport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: debugTransport,
		})
	}
	httpClient := manager.HTTPClient(ctx, creds)

	client := api.NewClient(httpClient, strings.TrimRight(creds.BaseURL, "/"),
		cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RequestTimeout, GetLogger())

	return &session{
		cfg:     cfg,
		creds:   creds,
		manager: manager,
		client:  client,
		profile: profile,
	}, nil
}

// engine builds the transfer engine for this session
func (s *session) engine(concurrency int) *syncengine.Engine {
	if concurrency <= 0 {
		concurrency = s.cfg.Concurrency
	}
	opts := executor.Options{
		MaxAttempts:     s.cfg.MaxRetries,
		RetryDelay:      s.cfg.GetRetryBaseDelay(),
		VerifyChecksums: s.cfg.VerifyChecksums,
		DryRun:          globalFlags.DryRun,
	}
	return syncengine.NewEngine(s.client, GetLogger(), opts, concurrency)
}

// recordRun persists a completed run to the history database. History is
// best effort; an unwritable database must not change the run outcome.
func (s *session) recordRun(ctx context.Context, command, system, remoteRoot, localRoot string, run *syncengine.Run, startedAt time.Time) string {
	if globalFlags.DryRun {
		return ""
	}
	configDir, err := config.GetConfigDir()
	if err != nil {
		GetLogger().Warn("Cannot locate config directory for run history", logging.F("error", err.Error()))
		return ""
	}
	db, err := index.Open(filepath.Join(configDir, historyFileName))
	if err != nil {
		GetLogger().Warn("Cannot open run history", logging.F("error", err.Error()))
		return ""
	}
	defer db.Close()

	summary := run.Summarize()
	runID := uuid.New().String()
	record := index.RunRecord{
		ID:         runID,
		Command:    command,
		System:     system,
		RemoteRoot: remoteRoot,
		LocalRoot:  localRoot,
		Status:     string(summary.Status),
		Succeeded:  summary.Succeeded,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		Bytes:      summary.Bytes,
		DurationMS: summary.DurationMS,
		StartedAt:  startedAt.Unix(),
	}
	items := make([]index.RunItem, 0, len(summary.Items))
	for _, item := range summary.Items {
		entry := index.RunItem{
			RunID:      runID,
			RemotePath: item.RemotePath,
			LocalPath:  item.LocalPath,
			Kind:       string(item.Kind),
			Outcome:    string(item.Outcome),
			Bytes:      item.Bytes,
			Detail:     item.Reason,
		}
		if item.Error != nil {
			entry.ErrorCode = item.Error.Code
			entry.Detail = item.Error.Message
		}
		items = append(items, entry)
	}

	if err := db.RecordRun(ctx, record, items); err != nil {
		GetLogger().Warn("Cannot record run history", logging.F("error", err.Error()))
		return ""
	}
	if err := db.Prune(ctx, historyKeep); err != nil {
		GetLogger().Warn("Cannot prune run history", logging.F("error", err.Error()))
	}
	return runID
}

// finishRun writes the run summary and maps the aggregate outcome onto
// the exit code. A run with any failure exits non-zero even though the
// summary itself was written successfully.
func finishRun(out *config.OutputFormatter, command string, run *syncengine.Run) error {
	summary := run.Summarize()
	if err := out.WriteSuccess(command, summary); err != nil {
		return err
	}
	if code := run.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
