package resolver

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// Kind classifies a resolved remote reference
type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// RemoteRef is a parsed remote reference: storage system plus an
// absolute path inside that system's namespace
type RemoteRef struct {
	System string
	Path   string
}

// String renders the reference back in scheme form
func (r RemoteRef) String() string {
	return utils.RefScheme + "://" + r.System + r.Path
}

// Base returns the last path element of the reference
func (r RemoteRef) Base() string {
	return path.Base(r.Path)
}

// Child returns the reference for a named child of this reference
func (r RemoteRef) Child(name string) RemoteRef {
	return RemoteRef{System: r.System, Path: path.Join(r.Path, name)}
}

// ParseRef parses an agave://system/path reference. It performs no remote
// calls; a malformed reference fails immediately with INVALID_REFERENCE.
func ParseRef(raw string) (RemoteRef, error) {
	prefix := utils.RefScheme + "://"
	if !strings.HasPrefix(raw, prefix) {
		return RemoteRef{}, invalidRef(raw, fmt.Sprintf("reference must start with %q", prefix))
	}
	rest := strings.TrimPrefix(raw, prefix)
	if rest == "" {
		return RemoteRef{}, invalidRef(raw, "reference missing storage system")
	}

	system := rest
	refPath := "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		system = rest[:idx]
		refPath = rest[idx:]
	}
	if system == "" {
		return RemoteRef{}, invalidRef(raw, "reference missing storage system")
	}
	if strings.ContainsAny(system, " \t") {
		return RemoteRef{}, invalidRef(raw, "storage system contains whitespace")
	}

	// Normalize: collapse duplicate separators and dot segments, keep absolute
	cleaned := path.Clean("/" + strings.Trim(refPath, "/"))
	if strings.HasPrefix(cleaned, "/..") {
		return RemoteRef{}, invalidRef(raw, "path escapes the system root")
	}

	return RemoteRef{System: system, Path: cleaned}, nil
}

func invalidRef(raw, reason string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidReference,
		fmt.Sprintf("invalid remote reference %q: %s", raw, reason)).
		WithContext("reference", raw).
		Build())
}

// Resolved is the outcome of one reference resolution
type Resolved struct {
	Ref    RemoteRef
	Kind   Kind
	Info   *types.FileInfo
	Cached bool
}

// Resolver resolves references against the files service, with a small
// TTL cache so repeated resolutions of the same reference in one run do
// not repeat the metadata round-trip
type Resolver struct {
	client   *api.Client
	cacheTTL time.Duration
	cache    *refCache
}

type refCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resolved  Resolved
	timestamp time.Time
}

// NewResolver creates a resolver. A zero or negative TTL disables caching.
func NewResolver(client *api.Client, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		client:   client,
		cacheTTL: cacheTTL,
		cache: &refCache{
			entries: make(map[string]cacheEntry),
		},
	}
}

// Resolve parses raw and probes the remote system to classify it as a
// file or directory. One metadata round-trip; idempotent and safe to
// retry on transient failure.
func (r *Resolver) Resolve(ctx context.Context, reqCtx *types.RequestContext, raw string) (*Resolved, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return nil, err
	}

	if cached, ok := r.lookup(ref); ok {
		result := cached
		result.Cached = true
		return &result, nil
	}

	info, err := r.client.Stat(ctx, reqCtx, ref.System, ref.Path)
	if err != nil {
		return nil, err
	}

	kind := KindFile
	if info.IsDir() {
		kind = KindDirectory
	}
	resolved := Resolved{Ref: ref, Kind: kind, Info: info}
	r.store(ref, resolved)
	return &resolved, nil
}

func (r *Resolver) lookup(ref RemoteRef) (Resolved, bool) {
	if r.cacheTTL <= 0 {
		return Resolved{}, false
	}
	r.cache.mu.RLock()
	defer r.cache.mu.RUnlock()
	entry, ok := r.cache.entries[ref.String()]
	if !ok || time.Since(entry.timestamp) > r.cacheTTL {
		return Resolved{}, false
	}
	return entry.resolved, true
}

func (r *Resolver) store(ref RemoteRef, resolved Resolved) {
	if r.cacheTTL <= 0 {
		return
	}
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	r.cache.entries[ref.String()] = cacheEntry{
		resolved:  resolved,
		timestamp: time.Now(),
	}
}
