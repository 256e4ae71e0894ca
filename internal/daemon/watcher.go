package daemon

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vbgl/encryptic/internal/record"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new record file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing record file was modified.
	OpModify
	// OpDelete indicates a record file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one record file of a watched collection folder.
type FileEvent struct {
	// Path is the file that changed.
	Path string
	// Collection is derived from the parent folder name.
	Collection record.Collection
	// Op is the operation that occurred.
	Op EventOp
}

// WatcherConfig holds configuration for the change watcher.
type WatcherConfig struct {
	// Debounce batches bursts of file events into one trigger.
	Debounce time.Duration

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		Debounce: 250 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// ChangeWatcher watches collection folders of a synced directory and calls
// trigger once per burst of *.json changes. The daemon passes
// Scheduler.Start as the trigger so edits delivered by a desktop client are
// reconciled without waiting for the watchdog.
type ChangeWatcher struct {
	watcher *fsnotify.Watcher
	trigger func()
	config  *WatcherConfig

	events chan FileEvent
	done   chan struct{}
	wg     gosync.WaitGroup

	mu       gosync.Mutex
	running  bool
	dirs     map[string]record.Collection
	debounce *time.Timer
}

// NewChangeWatcher creates a watcher. It must be started with Start()
// before it reacts to changes.
func NewChangeWatcher(trigger func(), config *WatcherConfig) (*ChangeWatcher, error) {
	if trigger == nil {
		return nil, fmt.Errorf("trigger cannot be nil")
	}
	defaults := DefaultWatcherConfig()
	if config == nil {
		config = defaults
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &ChangeWatcher{
		watcher: watcher,
		trigger: trigger,
		config:  config,
		events:  make(chan FileEvent, 100),
		done:    make(chan struct{}),
		dirs:    make(map[string]record.Collection),
	}, nil
}

// Start begins watching dirs. Each directory name must be a collection name,
// as laid out by the Dropbox-like backend: {root}/{profile}/{collection}.
func (cw *ChangeWatcher) Start(dirs ...string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher already running")
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no directories to watch")
	}

	added := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		c, err := record.ParseCollection(filepath.Base(abs))
		if err != nil {
			cw.removeAll(added)
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		if err := cw.watcher.Add(abs); err != nil {
			cw.removeAll(added)
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		cw.dirs[abs] = c
		added = append(added, abs)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.processEvents()

	cw.config.Logger.Printf("Watching %d folders", len(added))
	return nil
}

// Stop stops watching and blocks until the event loop has exited. A
// pending debounced trigger is dropped.
func (cw *ChangeWatcher) Stop() error {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = false
	if cw.debounce != nil {
		cw.debounce.Stop()
		cw.debounce = nil
	}
	cw.mu.Unlock()

	close(cw.done)

	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	cw.wg.Wait()
	close(cw.events)
	return nil
}

// Events returns the channel of observed file events. Events are dropped
// when nobody reads fast enough; the trigger still fires. The channel is
// closed by Stop.
func (cw *ChangeWatcher) Events() <-chan FileEvent {
	return cw.events
}

// IsRunning returns true if the watcher is currently running.
func (cw *ChangeWatcher) IsRunning() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.running
}

func (cw *ChangeWatcher) processEvents() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			fileEvent, ok := cw.convertEvent(event)
			if !ok {
				continue
			}

			select {
			case cw.events <- fileEvent:
			default:
			}
			cw.schedule()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounced trigger.
func (cw *ChangeWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return
	}
	if cw.debounce != nil {
		cw.debounce.Stop()
	}
	cw.debounce = time.AfterFunc(cw.config.Debounce, cw.trigger)
}

// convertEvent maps an fsnotify event to a FileEvent. Non-JSON files,
// temp files and chmod events are ignored.
func (cw *ChangeWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if !strings.HasSuffix(event.Name, ".json") {
		return FileEvent{}, false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return FileEvent{}, false
	}
	c, ok := cw.lookup(filepath.Dir(abs))
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: event.Name, Collection: c, Op: op}, true
}

func (cw *ChangeWatcher) lookup(dir string) (record.Collection, bool) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	c, ok := cw.dirs[dir]
	return c, ok
}

// removeAll undoes partial watches. Callers hold mu.
func (cw *ChangeWatcher) removeAll(dirs []string) {
	for _, dir := range dirs {
		_ = cw.watcher.Remove(dir)
		delete(cw.dirs, dir)
	}
}
