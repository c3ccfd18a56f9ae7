package executor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/logging"
	agtest "github.com/agavecli/agsync/internal/testing"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

func newDownloader(t *testing.T, server *agtest.FakeFilesServer, opts Options) *Downloader {
	client := api.NewClient(server.Client(), server.URL(), 0, 100, 10, logging.NewNoOpLogger())
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	return New(client, logging.NewNoOpLogger(), opts)
}

func remoteFile(system, path string, length int64, mtime time.Time) *types.FileInfo {
	return &types.FileInfo{
		Name:         filepath.Base(path),
		Path:         path,
		System:       system,
		Type:         types.EntryKindFile,
		Length:       length,
		LastModified: mtime.Format(utils.APITimeFormat),
	}
}

func TestDownloadWritesFile(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("downloaded bytes")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	server.AddFile("storage", "/data/file.txt", content, mtime)

	dest := filepath.Join(t.TempDir(), "file.txt")
	d := newDownloader(t, server, Options{VerifyChecksums: true})

	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), mtime), dest)
	agtest.AssertNoError(t, err, "download")

	if result.Skipped {
		t.Fatal("download unexpectedly skipped")
	}
	if result.Bytes != int64(len(content)) {
		t.Errorf("bytes = %d, want %d", result.Bytes, len(content))
	}

	data, err := os.ReadFile(dest)
	agtest.AssertNoError(t, err, "read downloaded file")
	if string(data) != string(content) {
		t.Errorf("content = %q", data)
	}

	info, err := os.Stat(dest)
	agtest.AssertNoError(t, err, "stat downloaded file")
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestDownloadSkipsFreshLocalCopy(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("stable content")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	server.AddFile("storage", "/data/file.txt", content, mtime)

	dest := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(dest, content, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dest, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	d := newDownloader(t, server, Options{})
	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), mtime), dest)
	agtest.AssertNoError(t, err, "download")

	if !result.Skipped {
		t.Fatal("expected skip for fresh local copy")
	}
	for _, req := range server.Requests() {
		if strings.Contains(req, "/media/") {
			t.Errorf("skip still fetched content: %s", req)
		}
	}
}

func TestDownloadReplacesStaleLocalCopy(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("new remote content")
	remoteTime := time.Now().Truncate(time.Second)
	server.AddFile("storage", "/data/file.txt", content, remoteTime)

	dest := filepath.Join(t.TempDir(), "file.txt")
	// Same size but older than the remote copy
	stale := []byte("old local contentXX")[:len(content)]
	if err := os.WriteFile(dest, stale, 0644); err != nil {
		t.Fatal(err)
	}
	old := remoteTime.Add(-24 * time.Hour)
	if err := os.Chtimes(dest, old, old); err != nil {
		t.Fatal(err)
	}

	d := newDownloader(t, server, Options{})
	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), remoteTime), dest)
	agtest.AssertNoError(t, err, "download")

	if result.Skipped {
		t.Fatal("stale local copy should be replaced")
	}
	data, _ := os.ReadFile(dest)
	if string(data) != string(content) {
		t.Errorf("content = %q, want remote content", data)
	}
}

func TestDownloadRetriesTransientFailure(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("eventually delivered")
	server.AddFile("storage", "/data/file.txt", content, time.Now())
	server.FailNext("storage", "/data/file.txt", 2, http.StatusServiceUnavailable)

	dest := filepath.Join(t.TempDir(), "file.txt")
	d := newDownloader(t, server, Options{MaxAttempts: 3})

	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), time.Now()), dest)
	agtest.AssertNoError(t, err, "download with retries")
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestDownloadExhaustsRetryBudget(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	server.AddFile("storage", "/data/file.txt", []byte("x"), time.Now())
	server.FailNext("storage", "/data/file.txt", 10, http.StatusServiceUnavailable)

	dest := filepath.Join(t.TempDir(), "file.txt")
	d := newDownloader(t, server, Options{MaxAttempts: 2})

	_, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", 1, time.Now()), dest)
	agtest.AssertError(t, err, "download should fail")
	if code := utils.ErrorCode(err); code != utils.ErrCodeNetworkError {
		t.Errorf("error code = %s, want %s", code, utils.ErrCodeNetworkError)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("failed download left a destination file behind")
	}
}

func TestDownloadDetectsTruncation(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("complete file contents")
	server.AddFile("storage", "/data/file.txt", content, time.Now())
	server.TruncateNext("storage", "/data/file.txt", 5)

	dest := filepath.Join(t.TempDir(), "file.txt")
	// One retry: the truncated attempt fails verification, the second
	// attempt delivers intact bytes
	d := newDownloader(t, server, Options{MaxAttempts: 1, VerifyChecksums: true})

	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), time.Now()), dest)
	agtest.AssertNoError(t, err, "download after truncated attempt")
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != string(content) {
		t.Errorf("content = %q", data)
	}
}

func TestDownloadIntegrityFailureIsTerminalWithoutRetries(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("will be truncated")
	server.AddFile("storage", "/data/file.txt", content, time.Now())
	server.TruncateNext("storage", "/data/file.txt", 3)

	dest := filepath.Join(t.TempDir(), "file.txt")
	d := newDownloader(t, server, Options{MaxAttempts: 0})

	_, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), time.Now()), dest)
	agtest.AssertError(t, err, "truncated download without retry budget")
	if code := utils.ErrorCode(err); code != utils.ErrCodeIntegrityError {
		t.Errorf("error code = %s, want %s", code, utils.ErrCodeIntegrityError)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination file exists after failed verification")
	}
}

func TestDownloadLeavesNoTempFiles(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("temp hygiene")
	server.AddFile("storage", "/data/file.txt", content, time.Now())
	server.TruncateNext("storage", "/data/file.txt", 2)

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.txt")
	d := newDownloader(t, server, Options{MaxAttempts: 1})

	_, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), time.Now()), dest)
	agtest.AssertNoError(t, err, "download")

	entries, err := os.ReadDir(dir)
	agtest.AssertNoError(t, err, "read dest dir")
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestLocalWriteErrorDetection(t *testing.T) {
	// Disk-full during the copy surfaces as a *fs.PathError on the temp
	// file; a remote stream dying mid-body does not
	diskFull := &fs.PathError{Op: "write", Path: "/dest/.file.tmp", Err: syscall.ENOSPC}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"disk full", diskFull, true},
		{"wrapped disk full", fmt.Errorf("copy: %w", diskFull), true},
		{"short remote stream", io.ErrUnexpectedEOF, false},
		{"plain transport error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLocalWriteError(tt.err); got != tt.want {
				t.Errorf("isLocalWriteError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDownloadBlockedDestinationIsLocalIOError(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	content := []byte("payload")
	server.AddFile("storage", "/data/file.txt", content, time.Now())

	// A regular file in the destination path makes the local side fail
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(blocker, "sub", "file.txt")

	d := newDownloader(t, server, Options{MaxAttempts: 2})
	_, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", int64(len(content)), time.Now()), dest)
	agtest.AssertError(t, err, "blocked destination")
	if code := utils.ErrorCode(err); code != utils.ErrCodeLocalIOError {
		t.Errorf("error code = %s, want %s", code, utils.ErrCodeLocalIOError)
	}
}

func TestDownloadDryRun(t *testing.T) {
	server := agtest.NewFakeFilesServer(t)
	server.AddFile("storage", "/data/file.txt", []byte("x"), time.Now())

	dest := filepath.Join(t.TempDir(), "file.txt")
	d := newDownloader(t, server, Options{DryRun: true})

	result, err := d.Download(agtest.TestContext(), agtest.TestRequestContext(),
		remoteFile("storage", "/data/file.txt", 1, time.Now()), dest)
	agtest.AssertNoError(t, err, "dry run")
	if !result.Skipped {
		t.Error("dry run should skip")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("dry run wrote a file")
	}
}
