package testing

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	gopath "path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// fakeFile is one stored file on the fake service
type fakeFile struct {
	data  []byte
	mtime time.Time
}

// failurePlan injects transient failures for a media path
type failurePlan struct {
	remaining int
	status    int
}

// FakeFilesServer is an in-memory files service backed by httptest. It
// speaks the listings and media endpoints the client uses: JSON listings
// with the directory's own "." entry, raw media bytes with a Content-MD5
// header, mkdir via PUT form, upload via multipart POST and import via
// urlToIngest POST.
type FakeFilesServer struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	dirs      map[string]bool     // "system:/path" -> exists
	files     map[string]fakeFile // "system:/path" -> content
	failures  map[string]*failurePlan
	truncate  map[string]int
	imports   []ImportRequest
	requests  []string
	authSeen  []string
	listLimit int
}

// ImportRequest records one urlToIngest call
type ImportRequest struct {
	System   string
	DestPath string
	URL      string
	FileName string
}

// NewFakeFilesServer starts a fake files service that shuts down with
// the test
func NewFakeFilesServer(t *testing.T) *FakeFilesServer {
	s := &FakeFilesServer{
		t:        t,
		dirs:     make(map[string]bool),
		files:    make(map[string]fakeFile),
		failures: make(map[string]*failurePlan),
		truncate: make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL of the fake service
func (s *FakeFilesServer) URL() string {
	return s.srv.URL
}

// Client returns an HTTP client for the fake service
func (s *FakeFilesServer) Client() *http.Client {
	return s.srv.Client()
}

func key(system, p string) string {
	return system + ":" + gopath.Clean("/"+strings.Trim(p, "/"))
}

// AddDir registers a directory, creating missing parents
func (s *FakeFilesServer) AddDir(system, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDirLocked(system, p)
}

func (s *FakeFilesServer) addDirLocked(system, p string) {
	p = gopath.Clean("/" + strings.Trim(p, "/"))
	for p != "/" {
		s.dirs[key(system, p)] = true
		p = gopath.Dir(p)
	}
	s.dirs[key(system, "/")] = true
}

// AddFile stores a file, creating missing parent directories
func (s *FakeFilesServer) AddFile(system, p string, data []byte, mtime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = gopath.Clean("/" + strings.Trim(p, "/"))
	s.addDirLocked(system, gopath.Dir(p))
	s.files[key(system, p)] = fakeFile{data: data, mtime: mtime}
}

// FileData returns the stored content of a file
func (s *FakeFilesServer) FileData(system, p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key(system, p)]
	return f.data, ok
}

// HasDir reports whether a directory exists
func (s *FakeFilesServer) HasDir(system, p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[key(system, p)]
}

// Imports returns the recorded urlToIngest requests
func (s *FakeFilesServer) Imports() []ImportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImportRequest(nil), s.imports...)
}

// AuthHeaders returns the Authorization header values seen so far
func (s *FakeFilesServer) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen...)
}

// Requests returns the request log as "METHOD path" strings
func (s *FakeFilesServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// FailNext makes the next n requests touching a path return status,
// whether they are listings, downloads, mkdirs or uploads
func (s *FakeFilesServer) FailNext(system, p string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key(system, p)] = &failurePlan{remaining: n, status: status}
}

// TruncateNext makes the next media response for a path deliver only the
// first n bytes, without a Content-Length header, so the short body
// arrives as a complete response
func (s *FakeFilesServer) TruncateNext(system, p string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[key(system, p)] = n
}

// SetListLimit caps listing pages at n entries regardless of the
// requested limit, to exercise pagination
func (s *FakeFilesServer) SetListLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listLimit = n
}

func (s *FakeFilesServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if auth := r.Header.Get("Authorization"); auth != "" {
		s.authSeen = append(s.authSeen, auth)
	}
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, utils.FilesListingsPrefix+"/"):
		s.handleListings(w, r)
	case strings.HasPrefix(r.URL.Path, utils.FilesMediaPrefix+"/"):
		s.handleMedia(w, r)
	default:
		writeEnvelope(w, http.StatusNotFound, "error", "unknown endpoint")
	}
}

// splitSystemPath extracts the system and remote path from a request path
func splitSystemPath(requestPath, prefix string) (system, remote string, err error) {
	rest := strings.TrimPrefix(requestPath, prefix+"/")
	if rest == "" {
		return "", "", fmt.Errorf("missing system")
	}
	parts := strings.SplitN(rest, "/", 2)
	system, err = url.PathUnescape(parts[0])
	if err != nil {
		return "", "", err
	}
	remote = "/"
	if len(parts) == 2 {
		segs := strings.Split(parts[1], "/")
		for i, seg := range segs {
			if segs[i], err = url.PathUnescape(seg); err != nil {
				return "", "", err
			}
		}
		remote = "/" + strings.Join(segs, "/")
	}
	return system, gopath.Clean(remote), nil
}

func (s *FakeFilesServer) handleListings(w http.ResponseWriter, r *http.Request) {
	system, remote, err := splitSystemPath(r.URL.Path, utils.FilesListingsPrefix)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(system, remote)
	if plan := s.failures[k]; plan != nil && plan.remaining > 0 {
		plan.remaining--
		writeEnvelope(w, plan.status, "error", "injected failure")
		return
	}
	var entries []*types.FileInfo
	if f, ok := s.files[k]; ok {
		entries = append(entries, &types.FileInfo{
			Name:         gopath.Base(remote),
			Path:         remote,
			System:       system,
			Type:         types.EntryKindFile,
			Format:       "raw",
			Length:       int64(len(f.data)),
			LastModified: f.mtime.Format(utils.APITimeFormat),
			Permissions:  "READ_WRITE",
		})
		s.paginate(w, r, entries)
		return
	}
	if !s.dirs[k] {
		writeEnvelope(w, http.StatusNotFound, "error",
			fmt.Sprintf("File/folder does not exist: %s", remote))
		return
	}

	entries = append(entries, &types.FileInfo{
		Name:        ".",
		Path:        remote,
		System:      system,
		Type:        types.EntryKindDir,
		Format:      "folder",
		Length:      4096,
		Permissions: "ALL",
	})
	for dk := range s.dirs {
		sys, p, ok := strings.Cut(dk, ":")
		if ok && sys == system && p != remote && gopath.Dir(p) == remote {
			entries = append(entries, &types.FileInfo{
				Name:        gopath.Base(p),
				Path:        p,
				System:      system,
				Type:        types.EntryKindDir,
				Format:      "folder",
				Length:      4096,
				Permissions: "ALL",
			})
		}
	}
	for fk, f := range s.files {
		sys, p, ok := strings.Cut(fk, ":")
		if ok && sys == system && gopath.Dir(p) == remote {
			entries = append(entries, &types.FileInfo{
				Name:         gopath.Base(p),
				Path:         p,
				System:       system,
				Type:         types.EntryKindFile,
				Format:       "raw",
				Length:       int64(len(f.data)),
				LastModified: f.mtime.Format(utils.APITimeFormat),
				Permissions:  "READ_WRITE",
			})
		}
	}

	s.paginate(w, r, entries)
}

// paginate applies limit/offset to a listing, honoring the configured
// page-size cap. Callers hold s.mu.
func (s *FakeFilesServer) paginate(w http.ResponseWriter, r *http.Request, entries []*types.FileInfo) {
	// Map iteration order differs between requests; listings must be stable
	// for offset-based pagination to hand out each entry exactly once.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	limit := parseIntDefault(r.URL.Query().Get("limit"), len(entries))
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	if s.listLimit > 0 && limit > s.listLimit {
		limit = s.listLimit
	}
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	writeListing(w, entries[offset:end])
}

func (s *FakeFilesServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	system, remote, err := splitSystemPath(r.URL.Path, utils.FilesMediaPrefix)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.serveFile(w, system, remote)
	case http.MethodPut:
		s.serveMkdir(w, r, system, remote)
	case http.MethodPost:
		s.serveWrite(w, r, system, remote)
	default:
		writeEnvelope(w, http.StatusMethodNotAllowed, "error", "method not allowed")
	}
}

func (s *FakeFilesServer) serveFile(w http.ResponseWriter, system, remote string) {
	s.mu.Lock()
	k := key(system, remote)
	if plan := s.failures[k]; plan != nil && plan.remaining > 0 {
		plan.remaining--
		status := plan.status
		s.mu.Unlock()
		writeEnvelope(w, status, "error", "injected failure")
		return
	}
	f, ok := s.files[k]
	short, truncated := s.truncate[k]
	if truncated {
		delete(s.truncate, k)
	}
	s.mu.Unlock()

	if !ok {
		writeEnvelope(w, http.StatusNotFound, "error",
			fmt.Sprintf("File/folder does not exist: %s", remote))
		return
	}

	sum := md5.Sum(f.data)
	w.Header().Set("Content-MD5", base64.StdEncoding.EncodeToString(sum[:]))
	w.Header().Set("Content-Type", "application/octet-stream")
	if truncated && short < len(f.data) {
		// Chunked short body: the response terminates cleanly but carries
		// fewer bytes than the listing advertised
		w.WriteHeader(http.StatusOK)
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		w.Write(f.data[:short])
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.data)
}

func (s *FakeFilesServer) serveMkdir(w http.ResponseWriter, r *http.Request, system, parent string) {
	if err := r.ParseForm(); err != nil || r.FormValue("action") != "mkdir" {
		writeEnvelope(w, http.StatusBadRequest, "error", "unsupported action")
		return
	}
	dirName := r.FormValue("path")
	if dirName == "" {
		writeEnvelope(w, http.StatusBadRequest, "error", "missing path")
		return
	}

	s.mu.Lock()
	if plan := s.failures[key(system, gopath.Join(parent, dirName))]; plan != nil && plan.remaining > 0 {
		plan.remaining--
		status := plan.status
		s.mu.Unlock()
		writeEnvelope(w, status, "error", "injected failure")
		return
	}
	parentExists := s.dirs[key(system, parent)]
	if parentExists {
		s.addDirLocked(system, gopath.Join(parent, dirName))
	}
	s.mu.Unlock()

	if !parentExists {
		writeEnvelope(w, http.StatusNotFound, "error",
			fmt.Sprintf("File/folder does not exist: %s", parent))
		return
	}
	writeEnvelope(w, http.StatusCreated, "success", "")
}

func (s *FakeFilesServer) serveWrite(w http.ResponseWriter, r *http.Request, system, remote string) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeEnvelope(w, http.StatusBadRequest, "error", err.Error())
			return
		}
		file, header, err := r.FormFile("fileToUpload")
		if err != nil {
			writeEnvelope(w, http.StatusBadRequest, "error", "missing fileToUpload")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeEnvelope(w, http.StatusInternalServerError, "error", err.Error())
			return
		}

		s.mu.Lock()
		if plan := s.failures[key(system, gopath.Join(remote, header.Filename))]; plan != nil && plan.remaining > 0 {
			plan.remaining--
			status := plan.status
			s.mu.Unlock()
			writeEnvelope(w, status, "error", "injected failure")
			return
		}
		destExists := s.dirs[key(system, remote)]
		if destExists {
			s.files[key(system, gopath.Join(remote, header.Filename))] = fakeFile{
				data:  data,
				mtime: time.Now(),
			}
		}
		s.mu.Unlock()

		if !destExists {
			writeEnvelope(w, http.StatusNotFound, "error",
				fmt.Sprintf("File/folder does not exist: %s", remote))
			return
		}
		writeEnvelope(w, http.StatusAccepted, "success", "")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	ingest := r.FormValue("urlToIngest")
	if ingest == "" {
		writeEnvelope(w, http.StatusBadRequest, "error", "missing urlToIngest")
		return
	}

	s.mu.Lock()
	s.imports = append(s.imports, ImportRequest{
		System:   system,
		DestPath: remote,
		URL:      ingest,
		FileName: r.FormValue("fileName"),
	})
	s.mu.Unlock()
	writeEnvelope(w, http.StatusAccepted, "success", "")
}

func writeListing(w http.ResponseWriter, entries []*types.FileInfo) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(types.FileListing{
		Status: "success",
		Result: entries,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, state, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  state,
		"message": message,
		"result":  nil,
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
