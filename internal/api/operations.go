package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// ListingsURL builds the metadata URL for a remote path
func (c *Client) ListingsURL(system, remotePath string) string {
	return c.baseURL + utils.FilesListingsPrefix + "/" + url.PathEscape(system) + escapePath(remotePath)
}

// MediaURL builds the content URL for a remote path
func (c *Client) MediaURL(system, remotePath string) string {
	return c.baseURL + utils.FilesMediaPrefix + "/" + url.PathEscape(system) + escapePath(remotePath)
}

// escapePath escapes each segment of a remote path, preserving slashes
func escapePath(remotePath string) string {
	remotePath = "/" + strings.Trim(remotePath, "/")
	segments := strings.Split(remotePath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// decodeListing reads a listings response body
func decodeListing(body io.Reader) (*types.FileListing, error) {
	var listing types.FileListing
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("malformed listing response: %w", err)
	}
	if listing.Result == nil {
		return nil, fmt.Errorf("listing response missing result")
	}
	return &listing, nil
}

// statusError reads an error response body into an APIStatusError
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	apiErr := &types.APIStatusError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && json.Unmarshal(data, &envelope) == nil {
		apiErr.Status = envelope.Status
		apiErr.Message = envelope.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, rawURL string) (*types.FileListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()
	return decodeListing(resp.Body)
}

// listPage fetches one page of a directory listing
func (c *Client) listPage(ctx context.Context, system, remotePath string, limit, offset int) ([]*types.FileInfo, error) {
	u := c.ListingsURL(system, remotePath)
	u += "?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	listing, err := c.getJSON(ctx, u)
	if err != nil {
		return nil, err
	}
	return listing.Result, nil
}

// Stat performs one metadata round-trip and describes the remote path.
// The returned FileInfo has Type "dir" when the path is a directory; the
// service reports a directory by including its own "." entry in the listing.
func (c *Client) Stat(ctx context.Context, reqCtx *types.RequestContext, system, remotePath string) (*types.FileInfo, error) {
	reqCtx.AddPath(remotePath)
	return ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) (*types.FileInfo, error) {
		entries, err := c.listPage(ctx, system, remotePath, utils.DefaultPageSize, 0)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsSelf() {
				info := *entry
				info.Name = path.Base(strings.TrimRight(entry.Path, "/"))
				info.Type = types.EntryKindDir
				info.System = system
				return &info, nil
			}
		}
		if len(entries) == 1 && !entries[0].IsDir() {
			info := *entries[0]
			info.System = system
			return &info, nil
		}
		// No self entry and multiple children: still a directory
		return &types.FileInfo{
			Name:   path.Base(strings.TrimRight(remotePath, "/")),
			Path:   remotePath,
			System: system,
			Type:   types.EntryKindDir,
		}, nil
	})
}

// List returns the immediate children of a remote directory. An existing
// directory with no children yields an empty slice, never an error. The
// directory's own "." entry is filtered out. Pagination is internal;
// callers always see the complete listing.
func (c *Client) List(ctx context.Context, reqCtx *types.RequestContext, system, remotePath string) ([]*types.FileInfo, error) {
	reqCtx.AddPath(remotePath)

	var children []*types.FileInfo
	offset := 0
	for {
		page, err := ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) ([]*types.FileInfo, error) {
			return c.listPage(ctx, system, remotePath, utils.DefaultPageSize, offset)
		})
		if err != nil {
			return nil, err
		}
		for _, entry := range page {
			if entry.IsSelf() {
				continue
			}
			if entry.System == "" {
				entry.System = system
			}
			children = append(children, entry)
		}
		// The service may cap the page size below what was requested, so
		// only an empty page marks the end of the listing
		if len(page) == 0 {
			break
		}
		offset += len(page)
	}
	return children, nil
}

// FetchResult is an open download stream for a remote file
type FetchResult struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentMD5    string
}

// Fetch opens the content stream for a remote file. Unlike the metadata
// operations it is not wrapped in ExecuteWithRetry; the download executor
// owns the retry loop so a failure mid-stream restarts the whole transfer.
func (c *Client) Fetch(ctx context.Context, reqCtx *types.RequestContext, system, remotePath string) (*FetchResult, error) {
	reqCtx.AddPath(remotePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MediaURL(system, remotePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return &FetchResult{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentMD5:    resp.Header.Get("Content-MD5"),
	}, nil
}

// Mkdir creates a directory under a remote parent path
func (c *Client) Mkdir(ctx context.Context, reqCtx *types.RequestContext, system, parentPath, dirName string) error {
	reqCtx.AddPath(path.Join(parentPath, dirName))

	_, err := ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) (struct{}, error) {
		form := url.Values{}
		form.Set("action", "mkdir")
		form.Set("path", dirName)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.MediaURL(system, parentPath), strings.NewReader(form.Encode()))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return struct{}{}, statusError(resp)
		}
		resp.Body.Close()
		return struct{}{}, nil
	})
	return err
}

// Upload posts a local file to a remote directory via multipart form.
// The whole body is buffered per attempt so retries re-send from the start.
func (c *Client) Upload(ctx context.Context, reqCtx *types.RequestContext, system, parentPath, localPath, name string) error {
	reqCtx.AddPath(path.Join(parentPath, name))

	_, err := ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) (struct{}, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return struct{}{}, err
		}
		defer f.Close()

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("fileToUpload", name)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return struct{}{}, err
		}
		if err := writer.Close(); err != nil {
			return struct{}{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MediaURL(system, parentPath), &body)
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return struct{}{}, statusError(resp)
		}
		resp.Body.Close()
		return struct{}{}, nil
	})
	return err
}

// Import asks the service to ingest content from an external URL into a
// remote directory, optionally renaming it
func (c *Client) Import(ctx context.Context, reqCtx *types.RequestContext, system, destPath, ingestURL, fileName string) error {
	reqCtx.AddPath(destPath)

	_, err := ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) (struct{}, error) {
		form := url.Values{}
		form.Set("urlToIngest", ingestURL)
		if fileName != "" {
			form.Set("fileName", fileName)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MediaURL(system, destPath), strings.NewReader(form.Encode()))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return struct{}{}, statusError(resp)
		}
		resp.Body.Close()
		return struct{}{}, nil
	})
	return err
}
