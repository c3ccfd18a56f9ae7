package testing

import (
	"context"
	"testing"

	"github.com/agavecli/agsync/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:     "test-profile",
		System:      "test-storage",
		RequestType: types.RequestTypeList,
		TraceID:     "test-trace-id",
	}
}

// TestRequestContextWithPaths creates a request context with remote paths
func TestRequestContextWithPaths(paths ...string) *types.RequestContext {
	ctx := TestRequestContext()
	for _, p := range paths {
		ctx.AddPath(p)
	}
	return ctx
}

// TestFileEntry creates a listing entry for a regular file
func TestFileEntry(name, path string, length int64) *types.FileInfo {
	return &types.FileInfo{
		Name:     name,
		Path:     path,
		Type:     types.EntryKindFile,
		Format:   "raw",
		MimeType: "application/octet-stream",
		Length:   length,
	}
}

// TestDirEntry creates a listing entry for a directory
func TestDirEntry(name, path string) *types.FileInfo {
	return &types.FileInfo{
		Name:   name,
		Path:   path,
		Type:   types.EntryKindDir,
		Format: "folder",
		Length: 4096,
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// AssertNotNil is a helper to fail the test if value is nil
func AssertNotNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected non-nil value", msgAndArgs[0])
		} else {
			t.Fatal("expected non-nil value")
		}
	}
}
