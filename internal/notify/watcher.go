package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/ingest"
)

// EventWatcher watches the events directory and consumes each event file.
// Ingestion events go to a Notifier; registry events go to the handler set
// with WithRegistryHandler.
type EventWatcher struct {
	dir      string
	target   ingest.Notifier
	registry func(RegistryEvent)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// WatcherOption configures an EventWatcher.
type WatcherOption func(*EventWatcher)

// WithRegistryHandler sets the function called for each registry event.
func WithRegistryHandler(fn func(RegistryEvent)) WatcherOption {
	return func(ew *EventWatcher) {
		ew.registry = fn
	}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, target ingest.Notifier, opts ...WatcherOption) *EventWatcher {
	ew := &EventWatcher{
		dir:    Dir(dataPath),
		target: target,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ew)
	}
	return ew
}

// Start drains event files already present, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	ew.drainExisting()

	go ew.loop()
	log.Info().Str("dir", ew.dir).Msg("notify: watching for cross-process events")
	return nil
}

// Stop shuts down the watcher.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			// Write publishes by rename, which fsnotify reports as Create.
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, eventExt) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("notify: watcher error")
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), eventExt) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed by another process
	}
	_ = os.Remove(path)

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("notify: invalid event file")
		return
	}

	switch head.Type {
	case EventComponentsChanged:
		var event RegistryEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("notify: invalid registry event")
			return
		}
		if ew.registry != nil {
			ew.registry(event)
		}
	default:
		var event ingest.IngestEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("notify: invalid event file")
			return
		}
		if event.MemoID != 0 && ew.target != nil {
			ew.target.NotifyIngested(event)
		}
	}
}
