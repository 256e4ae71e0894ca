// Package dropbox implements the Dropbox-like cloud backend. Records are
// JSON files inside an application folder that a desktop client keeps in
// sync with the cloud:
//
//	{root}/{profile}/{collection}/{id}.json
//
// The folder is accessed through afero so tests can run on an in-memory
// filesystem.
package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/record"
)

func init() {
	cloud.Register(cloud.BackendDropbox, func(s cloud.Settings) (cloud.Adapter, error) {
		return New(s)
	})
}

// Adapter reads and writes records in a synced folder.
type Adapter struct {
	fs     afero.Fs
	root   string
	logger *log.Logger
}

// New creates an adapter on the operating system filesystem.
// Recognized keys: root (required).
func New(s cloud.Settings) (*Adapter, error) {
	root := s.String("root")
	if root == "" {
		return nil, fmt.Errorf("%w: root", cloud.ErrMissingSetting)
	}
	return NewWithFs(afero.NewOsFs(), root), nil
}

// NewWithFs creates an adapter on an arbitrary afero filesystem.
func NewWithFs(fs afero.Fs, root string) *Adapter {
	return &Adapter{
		fs:     fs,
		root:   filepath.Clean(root),
		logger: log.New(os.Stderr, "[dropbox] ", log.LstdFlags),
	}
}

// SetLogger replaces the adapter logger.
func (a *Adapter) SetLogger(l *log.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Root returns the application folder.
func (a *Adapter) Root() string {
	return a.root
}

// CollectionDir returns the folder holding one collection of a profile.
func (a *Adapter) CollectionDir(profileID string, c record.Collection) string {
	return filepath.Join(a.root, profileID, c.String())
}

// CheckAuth implements cloud.Adapter. The folder backend is usable as long as
// the application folder exists.
func (a *Adapter) CheckAuth(ctx context.Context) (bool, error) {
	info, err := a.fs.Stat(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to stat %s: %v", cloud.ErrUnavailable, a.root, err)
	}
	return info.IsDir(), nil
}

// Find implements cloud.Adapter.
func (a *Adapter) Find(ctx context.Context, q cloud.Query) ([]record.Record, error) {
	dir := a.CollectionDir(q.ProfileID, q.Type)

	entries, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []record.Record{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", cloud.ErrUnavailable, dir, err)
	}

	records := make([]record.Record, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := afero.ReadFile(a.fs, path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", cloud.ErrUnavailable, path, err)
		}

		r, err := record.Parse(data)
		if err != nil {
			// Half-synced or foreign files must not block the pass
			a.logger.Printf("Warning: skipping invalid record file %s: %v", path, err)
			continue
		}
		records = append(records, r)
	}

	return records, nil
}

// SaveModel implements cloud.Adapter. The file is written next to its final
// name and renamed so the desktop client never uploads a partial document.
func (a *Adapter) SaveModel(ctx context.Context, args cloud.SaveArgs) error {
	if err := args.Record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", cloud.ErrInvalidRecord, err)
	}
	if !args.Type.Valid() {
		return fmt.Errorf("%w: unknown collection %q", cloud.ErrInvalidRecord, args.Type)
	}
	if strings.ContainsAny(args.Record.ID, `/\`) {
		return fmt.Errorf("%w: id %q contains a path separator", cloud.ErrInvalidRecord, args.Record.ID)
	}

	dir := a.CollectionDir(args.ProfileID, args.Type)
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", cloud.ErrUnavailable, dir, err)
	}

	data, err := json.MarshalIndent(args.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", args.Record.ID, err)
	}

	path := filepath.Join(dir, args.Record.Filename())
	tmp := path + ".tmp"
	if err := afero.WriteFile(a.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", cloud.ErrUnavailable, tmp, err)
	}
	if err := a.fs.Rename(tmp, path); err != nil {
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("%w: failed to rename %s: %v", cloud.ErrUnavailable, tmp, err)
	}

	return nil
}
