// Package notify carries events between fieldmemo processes through files in
// a shared directory, so memos ingested and registry changes imported by the
// CLI reach the API server.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/ingest"
)

const eventExt = ".event"

// EventComponentsChanged is the type of a RegistryEvent.
const EventComponentsChanged = "components_changed"

// RegistryEvent announces that another process changed the component
// registry. Receivers rebuild their resolver.
type RegistryEvent struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"` // e.g. imported
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Timestamp time.Time `json:"timestamp"`
}

// Dir returns the events directory under dataPath.
func Dir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}

// EventWriter writes one file per ingestion event to a shared directory.
// It implements ingest.Notifier.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: Dir(dataPath)}
}

// Write stores event as a new event file. Safe to call concurrently.
func (w *EventWriter) Write(event ingest.IngestEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return w.publish(strconv.FormatInt(event.MemoID, 10), event)
}

// WriteRegistry stores a registry change as a new event file.
func (w *EventWriter) WriteRegistry(event RegistryEvent) error {
	event.Type = EventComponentsChanged
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return w.publish("components", event)
}

func (w *EventWriter) publish(suffix string, event any) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + suffix
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	// Renaming makes the complete file appear at once to watchers.
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

// NotifyIngested implements ingest.Notifier. Failures are logged; the
// ingestion itself has already committed.
func (w *EventWriter) NotifyIngested(event ingest.IngestEvent) {
	if err := w.Write(event); err != nil {
		log.Warn().Err(err).Int64("memo_id", event.MemoID).Msg("notify: failed to publish event")
	}
}

// NotifyComponentsChanged publishes a registry change. Failures are logged;
// the registry write has already committed.
func (w *EventWriter) NotifyComponentsChanged(event RegistryEvent) {
	if err := w.WriteRegistry(event); err != nil {
		log.Warn().Err(err).Str("action", event.Action).Msg("notify: failed to publish registry event")
	}
}
