package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/logging"
)

// ScheduleChangeCallback is called once per burst of writes to the schedule file
type ScheduleChangeCallback func(path string)

// ScheduleWatcher monitors a local schedule workbook for saves
type ScheduleWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ScheduleChangeCallback
	debounce time.Duration
	log      *logrus.Entry

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
}

// NewScheduleWatcher creates a watcher for the workbook at path. The parent
// directory is watched because spreadsheet editors save by rename.
func NewScheduleWatcher(path string, callback ScheduleChangeCallback, log *logrus.Entry) (*ScheduleWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ScheduleWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: 2 * time.Second,
		log:      logging.OrNop(log).WithField("component", "watcher"),
	}, nil
}

// Start begins watching for file changes
func (sw *ScheduleWatcher) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				sw.handleEvent(event)
			case err, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				sw.log.WithError(err).Warn("Watcher error")
			}
		}
	}()
}

// Stop stops watching for file changes
func (sw *ScheduleWatcher) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.mu.Lock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.mu.Unlock()
	sw.watcher.Close()
}

func (sw *ScheduleWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != sw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.flush)
}

func (sw *ScheduleWatcher) flush() {
	if sw.callback == nil {
		return
	}
	sw.log.WithField("path", sw.path).Info("Schedule changed")
	sw.callback(sw.path)
}

// SetDebounce sets the debounce duration for batching file changes
func (sw *ScheduleWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounce = d
}
