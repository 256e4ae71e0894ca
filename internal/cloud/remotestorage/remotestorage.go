// Package remotestorage implements the remote-storage cloud backend: records
// are JSON documents under {url}/{module}/{profile}/{collection}/{id}, and
// folders are listed with JSON-LD folder descriptions.
package remotestorage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/record"
)

const (
	// DefaultModule is the top-level folder owned by this application.
	DefaultModule = "encryptic"

	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 8
)

func init() {
	cloud.Register(cloud.BackendRemoteStorage, func(s cloud.Settings) (cloud.Adapter, error) {
		return New(s)
	})
}

// Adapter talks to a remote-storage server.
type Adapter struct {
	baseURL     string
	module      string
	concurrency int
	client      *http.Client
	logger      *log.Logger

	mu    sync.RWMutex
	token string
}

// folderListing is the JSON-LD body returned for folder requests.
type folderListing struct {
	Items map[string]json.RawMessage `json:"items"`
}

// New creates an adapter from settings. Recognized keys: url (required),
// token, module, timeout, concurrency.
func New(s cloud.Settings) (*Adapter, error) {
	base := strings.TrimRight(s.String("url"), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: url", cloud.ErrMissingSetting)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", base, err)
	}

	module := strings.Trim(s.String("module"), "/")
	if module == "" {
		module = DefaultModule
	}

	concurrency := s.Int("concurrency", defaultConcurrency)
	if concurrency < 1 {
		concurrency = 1
	}

	return &Adapter{
		baseURL:     base,
		module:      module,
		concurrency: concurrency,
		client:      &http.Client{Timeout: s.Duration("timeout", defaultTimeout)},
		logger:      log.New(os.Stderr, "[remote-storage] ", log.LstdFlags),
		token:       s.String("token"),
	}, nil
}

// SetHTTPClient replaces the HTTP client, mainly for tests.
func (a *Adapter) SetHTTPClient(c *http.Client) {
	a.client = c
}

// SetLogger replaces the adapter logger.
func (a *Adapter) SetLogger(l *log.Logger) {
	if l != nil {
		a.logger = l
	}
}

// CheckAuth implements cloud.Adapter.
func (a *Adapter) CheckAuth(ctx context.Context) (bool, error) {
	if a.currentToken() == "" {
		return false, nil
	}

	resp, err := a.do(ctx, http.MethodGet, a.moduleURL()+"/", nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	case resp.StatusCode == http.StatusNotFound || isSuccess(resp.StatusCode):
		return true, nil
	default:
		return false, statusError(http.MethodGet, a.moduleURL()+"/", resp.StatusCode)
	}
}

// Find implements cloud.Adapter.
func (a *Adapter) Find(ctx context.Context, q cloud.Query) ([]record.Record, error) {
	folder := a.folderURL(q.ProfileID, q.Type)

	names, err := a.listFolder(ctx, folder)
	if err != nil {
		return nil, err
	}

	records := make([]record.Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, name := range names {
		g.Go(func() error {
			r, err := a.fetchItem(gctx, folder+url.PathEscape(name))
			if err != nil {
				return err
			}
			records[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveModel implements cloud.Adapter.
func (a *Adapter) SaveModel(ctx context.Context, args cloud.SaveArgs) error {
	if err := args.Record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", cloud.ErrInvalidRecord, err)
	}

	body, err := json.Marshal(args.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", args.Record.ID, err)
	}

	if !args.Type.Valid() {
		return fmt.Errorf("%w: unknown collection %q", cloud.ErrInvalidRecord, args.Type)
	}
	target := a.folderURL(args.ProfileID, args.Type) + url.PathEscape(args.Record.ID)

	resp, err := a.do(ctx, http.MethodPut, target, body)
	if err != nil {
		return err
	}
	defer drain(resp)

	if !isSuccess(resp.StatusCode) {
		return statusError(http.MethodPut, target, resp.StatusCode)
	}
	return nil
}

// Disconnect drops the bearer token. Subsequent CheckAuth calls report false.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()

	a.logger.Printf("Disconnected from %s", a.baseURL)
	return nil
}

// listFolder returns the document names in a folder. Sub-folders are skipped.
func (a *Adapter) listFolder(ctx context.Context, folder string) ([]string, error) {
	resp, err := a.do(ctx, http.MethodGet, folder, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if !isSuccess(resp.StatusCode) {
		return nil, statusError(http.MethodGet, folder, resp.StatusCode)
	}

	var listing folderListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: failed to decode folder listing %s: %v", cloud.ErrInvalidRecord, folder, err)
	}

	names := make([]string, 0, len(listing.Items))
	for name := range listing.Items {
		if strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// fetchItem downloads and decodes one record document.
func (a *Adapter) fetchItem(ctx context.Context, itemURL string) (record.Record, error) {
	resp, err := a.do(ctx, http.MethodGet, itemURL, nil)
	if err != nil {
		return record.Record{}, err
	}
	defer drain(resp)

	if !isSuccess(resp.StatusCode) {
		return record.Record{}, statusError(http.MethodGet, itemURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: failed to read %s: %v", cloud.ErrUnavailable, itemURL, err)
	}

	r, err := record.Parse(data)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %s: %v", cloud.ErrInvalidRecord, itemURL, err)
	}
	return r, nil
}

// do sends an authorized request. Transport failures map to ErrUnavailable.
func (a *Adapter) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token := a.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", cloud.ErrUnavailable, method, target, err)
	}
	return resp, nil
}

func (a *Adapter) currentToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *Adapter) moduleURL() string {
	return a.baseURL + "/" + a.module
}

// folderURL returns the folder URL for a profile and collection, with a
// trailing slash.
func (a *Adapter) folderURL(profileID string, c record.Collection) string {
	return a.moduleURL() + "/" + url.PathEscape(profileID) + "/" + url.PathEscape(c.String()) + "/"
}

func statusError(method, target string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", cloud.ErrNotAuthenticated, method, target, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", cloud.ErrNotFound, method, target)
	case status >= 500:
		return fmt.Errorf("%w: %s %s returned %d", cloud.ErrUnavailable, method, target, status)
	default:
		return fmt.Errorf("%s %s returned unexpected status %d", method, target, status)
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
