package executor

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/google/uuid"
)

// Options configures the download executor
type Options struct {
	// MaxAttempts bounds the whole-transfer retry loop. Zero means one
	// attempt, no retries.
	MaxAttempts int

	// RetryDelay is the base delay between transfer attempts
	RetryDelay time.Duration

	// VerifyChecksums enables MD5 verification when the service sends a
	// Content-MD5 header
	VerifyChecksums bool

	// DryRun reports what would be transferred without writing anything
	DryRun bool
}

// Result describes the outcome of one download
type Result struct {
	Bytes      int64
	Skipped    bool
	SkipReason string
	Attempts   int
}

// Downloader transfers single remote files to local paths. Each transfer
// is atomic: content streams into a hidden temp file in the destination
// directory and only a verified transfer is renamed into place, so an
// existing file is never clobbered by a partial download.
type Downloader struct {
	client *api.Client
	logger logging.Logger
	opts   Options
}

// New creates a download executor
func New(client *api.Client, logger logging.Logger, opts Options) *Downloader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}
	return &Downloader{client: client, logger: logger, opts: opts}
}

// Download mirrors one remote file to destPath. A fresh local copy (same
// size, not older than the remote mtime) is skipped. Transient failures
// restart the whole transfer up to the attempt budget; verification
// failures count as transient because a re-fetch can succeed.
func (d *Downloader) Download(ctx context.Context, reqCtx *types.RequestContext, info *types.FileInfo, destPath string) (Result, error) {
	remoteMTime := parseRemoteTime(info.LastModified)

	if reason, fresh := d.isFresh(destPath, info.Length, remoteMTime); fresh {
		d.logger.Debug("Skipping fresh local file",
			logging.F("path", destPath),
			logging.F("reason", reason),
		)
		return Result{Skipped: true, SkipReason: reason}, nil
	}

	if d.opts.DryRun {
		return Result{Skipped: true, SkipReason: "dry run"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return Result{}, localIOError("cannot create destination directory", destPath, err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := api.Backoff(d.opts.RetryDelay, attempt-1, lastErr)
			d.logger.Warn("Retrying download",
				logging.F("path", info.Path),
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
			)
			select {
			case <-ctx.Done():
				return Result{Attempts: attempt}, d.client.Classify(ctx.Err(), reqCtx)
			case <-time.After(delay):
			}
		}

		written, err := d.transferOnce(ctx, reqCtx, info, destPath, remoteMTime)
		if err == nil {
			return Result{Bytes: written, Attempts: attempt + 1}, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	var appErr *utils.AppError
	if !errors.As(lastErr, &appErr) {
		lastErr = d.client.Classify(lastErr, reqCtx)
	}
	return Result{Attempts: d.opts.MaxAttempts + 1}, lastErr
}

// transferOnce performs one complete fetch, write and verify cycle
func (d *Downloader) transferOnce(ctx context.Context, reqCtx *types.RequestContext, info *types.FileInfo, destPath string, remoteMTime time.Time) (written int64, err error) {
	fetch, err := d.client.Fetch(ctx, reqCtx, info.System, info.Path)
	if err != nil {
		return 0, err
	}
	defer fetch.Body.Close()

	dir := filepath.Dir(destPath)
	tmpName := fmt.Sprintf(".%s.%s.tmp", filepath.Base(destPath), shortID())
	tmpPath := filepath.Join(dir, tmpName)

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, localIOError("cannot create temp file", tmpPath, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var digest hash.Hash
	var dst io.Writer = tmp
	if d.opts.VerifyChecksums && fetch.ContentMD5 != "" {
		digest = md5.New()
		dst = io.MultiWriter(tmp, digest)
	}

	written, err = io.Copy(dst, fetch.Body)
	if err != nil {
		if isLocalWriteError(err) {
			err = localIOError("cannot write temp file", tmpPath, err)
		}
		return written, err
	}
	if err = tmp.Close(); err != nil {
		return written, localIOError("cannot flush temp file", tmpPath, err)
	}

	expected := fetch.ContentLength
	if expected < 0 {
		expected = info.Length
	}
	if expected >= 0 && written != expected {
		err = integrityError(info.Path,
			fmt.Sprintf("size mismatch: wrote %d bytes, expected %d", written, expected))
		os.Remove(tmpPath)
		return written, err
	}

	if digest != nil {
		if !checksumMatches(fetch.ContentMD5, digest.Sum(nil)) {
			err = integrityError(info.Path, "MD5 checksum mismatch")
			os.Remove(tmpPath)
			return written, err
		}
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return written, localIOError("cannot move file into place", destPath, err)
	}

	if !remoteMTime.IsZero() {
		// Local mtime mirrors the remote so freshness checks stay stable
		_ = os.Chtimes(destPath, remoteMTime, remoteMTime)
	}

	return written, nil
}

// isFresh reports whether the local file already mirrors the remote one
func (d *Downloader) isFresh(destPath string, remoteSize int64, remoteMTime time.Time) (string, bool) {
	local, err := os.Stat(destPath)
	if err != nil || !local.Mode().IsRegular() {
		return "", false
	}
	if local.Size() != remoteSize {
		return "", false
	}
	if remoteMTime.IsZero() {
		return "same size, remote mtime unknown", true
	}
	if local.ModTime().Before(remoteMTime) {
		return "", false
	}
	return "same size and not older than remote", true
}

// isLocalWriteError distinguishes the writer side of the download copy
// from remote stream failures. File writes surface *fs.PathError (disk
// full, quota); a dying response body does not.
func isLocalWriteError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}

// retryable reports whether a failed transfer is worth restarting.
// Integrity failures are retryable: the next fetch can deliver intact
// bytes.
func retryable(err error) bool {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		if appErr.CLIError.Code == utils.ErrCodeIntegrityError {
			return true
		}
		return appErr.CLIError.Retryable
	}
	return api.IsRetryable(err)
}

// checksumMatches compares a Content-MD5 header against a computed
// digest, accepting base64 or hex encodings
func checksumMatches(header string, sum []byte) bool {
	header = strings.TrimSpace(header)
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil && len(decoded) == md5.Size {
		return string(decoded) == string(sum)
	}
	return strings.EqualFold(header, hex.EncodeToString(sum))
}

func parseRemoteTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(utils.APITimeFormat, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func shortID() string {
	return uuid.New().String()[:8]
}

func integrityError(remotePath, detail string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeIntegrityError,
		fmt.Sprintf("download verification failed for %s: %s", remotePath, detail)).
		WithRetryable(true).
		WithContext("remotePath", remotePath).
		Build())
}

func localIOError(message, path string, err error) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeLocalIOError,
		fmt.Sprintf("%s: %v", message, err)).
		WithContext("path", path).
		Build())
}
