package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// Ingester performs one atomic ingestion. *ingest.Writer implements it.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*types.IngestResult, error)
}

// MemoHandlers serves the memo ingestion and read endpoints.
type MemoHandlers struct {
	ingester Ingester
	memos    storage.MemoReader
}

// NewMemoHandlers creates memo handlers.
func NewMemoHandlers(ingester Ingester, memos storage.MemoReader) *MemoHandlers {
	return &MemoHandlers{ingester: ingester, memos: memos}
}

// CreateMemo handles POST /api/memos - ingest one extraction payload.
func (h *MemoHandlers) CreateMemo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var req IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if strings.TrimSpace(req.Engineer) == "" {
		respondError(w, http.StatusBadRequest, "engineer is required", nil)
		return
	}

	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required", nil)
		return
	}

	effective, err := parseDate(req.EffectiveDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid effective_date", err)
		return
	}

	ingestReq := ingest.Request{
		Payload:     extraction.Parse(payloadBytes(req.Payload)),
		Transcript:  req.Transcript,
		SourceLabel: req.SourceLabel,
		Engineer:    req.Engineer,
	}
	if !effective.IsZero() {
		ingestReq.EffectiveDate = &effective
	}

	result, err := h.ingester.Ingest(r.Context(), ingestReq)
	if err != nil {
		respondIngestError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// payloadBytes unwraps a payload sent as a JSON string; objects pass through.
func payloadBytes(raw json.RawMessage) []byte {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text)
	}
	return raw
}

// ListMemos handles GET /api/memos - list memos newest first.
func (h *MemoHandlers) ListMemos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.MemoFilter{
		Page:         parseInt(q.Get("page"), 1),
		Limit:        parseInt(q.Get("limit"), 50),
		Engineer:     q.Get("engineer"),
		Severity:     q.Get("severity"),
		ActivityType: q.Get("activity_type"),
		Search:       q.Get("search"),
	}

	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid from date", err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid to date", err)
		return
	}
	if !filter.To.IsZero() && len(q.Get("to")) == len("2006-01-02") {
		// A bare date includes the whole day.
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}

	result, err := h.memos.ListMemos(r.Context(), filter)
	if err != nil {
		respondStoreError(w, "memos", err)
		return
	}

	respondJSON(w, http.StatusOK, paginated(result))
}

// GetMemo handles GET /api/memos/{id} - a memo with all derived events.
func (h *MemoHandlers) GetMemo(w http.ResponseWriter, r *http.Request) {
	id, ok := extractInt64ID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "valid memo ID is required", nil)
		return
	}

	detail, err := h.memos.GetMemo(r.Context(), id)
	if err != nil {
		respondStoreError(w, "memo", err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// UpdateMemo handles PUT /api/memos/{id} - edit a memo's summary fields.
func (h *MemoHandlers) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	id, ok := extractInt64ID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "valid memo ID is required", nil)
		return
	}

	var req MemoEditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	update, err := req.toUpdate()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid duration_hours", err)
		return
	}

	memo, err := h.memos.UpdateMemo(r.Context(), id, update)
	if err != nil {
		respondStoreError(w, "memo", err)
		return
	}

	respondJSON(w, http.StatusOK, memo)
}

func (req MemoEditRequest) toUpdate() (storage.MemoUpdate, error) {
	update := storage.MemoUpdate{
		Engineer:           req.Engineer,
		ActivityType:       req.ActivityType,
		Summary:            req.Summary,
		SystemPerformance:  req.SystemPerformance,
		MaintenanceDone:    req.MaintenanceDone,
		IssuesFound:        req.IssuesFound,
		ActionItemsText:    req.ActionItems,
		ComponentsAffected: req.ComponentsAffected,
		AdditionalNotes:    req.AdditionalNotes,
		RawTranscript:      req.RawTranscript,
	}
	if req.Severity != nil {
		sev := types.NormalizeSeverity(*req.Severity)
		update.Severity = &sev
	}

	if len(req.DurationHours) > 0 {
		var raw any
		if err := json.Unmarshal(req.DurationHours, &raw); err != nil {
			return update, err
		}
		update.DurationHours = types.ParseFloat(raw)
		update.ClearDuration = update.DurationHours == nil
	}
	return update, nil
}

// DeleteMemo handles DELETE /api/memos/{id}.
func (h *MemoHandlers) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	id, ok := extractInt64ID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "valid memo ID is required", nil)
		return
	}

	if err := h.memos.DeleteMemo(r.Context(), id); err != nil {
		respondStoreError(w, "memo", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEngineers handles GET /api/engineers.
func (h *MemoHandlers) ListEngineers(w http.ResponseWriter, r *http.Request) {
	engineers, err := h.memos.ListEngineers(r.Context())
	if err != nil {
		respondStoreError(w, "engineers", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engineers": engineers,
	})
}
