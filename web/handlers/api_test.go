package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// MockIngester is a mock implementation of Ingester for testing.
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, req ingest.Request) (*types.IngestResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.IngestResult), args.Error(1)
}

// MockMemoReader is a mock implementation of storage.MemoReader for testing.
type MockMemoReader struct {
	mock.Mock
}

func (m *MockMemoReader) GetMemo(ctx context.Context, id int64) (*types.MemoDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MemoDetail), args.Error(1)
}

func (m *MockMemoReader) ListMemos(ctx context.Context, filter storage.MemoFilter) (*storage.PaginatedResult[types.Memo], error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PaginatedResult[types.Memo]), args.Error(1)
}

func (m *MockMemoReader) UpdateMemo(ctx context.Context, id int64, update storage.MemoUpdate) (*types.Memo, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Memo), args.Error(1)
}

func (m *MockMemoReader) DeleteMemo(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMemoReader) ListEngineers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func postMemo(t *testing.T, h *MemoHandlers, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/memos", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.CreateMemo(rec, req)
	return rec
}

// TestMemoHandlers_CreateMemo tests request decoding and error mapping.
func TestMemoHandlers_CreateMemo(t *testing.T) {
	okResult := &types.IngestResult{
		MemoID:    42,
		Counts:    types.Counts{Maintenance: 1},
		Unmatched: []string{"mystery sensor"},
	}

	tests := []struct {
		name           string
		body           interface{}
		mockSetup      func(*MockIngester)
		expectedStatus int
		validateBody   func(*testing.T, []byte)
	}{
		{
			name: "payload as object",
			body: map[string]interface{}{
				"engineer":       "alice",
				"source_label":   "memo.m4a",
				"effective_date": "2024-03-14",
				"payload": map[string]interface{}{
					"maintenance_performed": []interface{}{
						map[string]interface{}{"component_raw": "mystery sensor", "activity_performed": "reseat"},
					},
				},
			},
			mockSetup: func(m *MockIngester) {
				m.On("Ingest", mock.Anything, mock.MatchedBy(func(req ingest.Request) bool {
					return req.Engineer == "alice" &&
						req.SourceLabel == "memo.m4a" &&
						req.EffectiveDate != nil &&
						req.EffectiveDate.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)) &&
						len(req.Payload.Maintenance) == 1 &&
						req.Payload.ParseError == ""
				})).Return(okResult, nil)
			},
			expectedStatus: http.StatusCreated,
			validateBody: func(t *testing.T, body []byte) {
				var result types.IngestResult
				assert.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, int64(42), result.MemoID)
				assert.Equal(t, []string{"mystery sensor"}, result.Unmatched)
			},
		},
		{
			name: "payload as fenced string",
			body: map[string]interface{}{
				"engineer": "bob",
				"payload":  "```json\n{\"action_items\": [{\"action_text\": \"order seals\"}]}\n```",
			},
			mockSetup: func(m *MockIngester) {
				m.On("Ingest", mock.Anything, mock.MatchedBy(func(req ingest.Request) bool {
					return len(req.Payload.ActionItems) == 1 && req.EffectiveDate == nil
				})).Return(okResult, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "unparseable payload still ingested",
			body: map[string]interface{}{
				"engineer": "bob",
				"payload":  "no events today",
			},
			mockSetup: func(m *MockIngester) {
				m.On("Ingest", mock.Anything, mock.MatchedBy(func(req ingest.Request) bool {
					return req.Payload.ParseError == "no events today"
				})).Return(&types.IngestResult{MemoID: 1, Unmatched: []string{}, ParseError: "no events today"}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing engineer",
			body:           map[string]interface{}{"payload": map[string]interface{}{}},
			mockSetup:      func(m *MockIngester) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing payload",
			body:           map[string]interface{}{"engineer": "carol"},
			mockSetup:      func(m *MockIngester) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad effective date",
			body:           map[string]interface{}{"engineer": "carol", "payload": "{}", "effective_date": "last tuesday"},
			mockSetup:      func(m *MockIngester) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "breaker open",
			body: map[string]interface{}{"engineer": "dave", "payload": "{}"},
			mockSetup: func(m *MockIngester) {
				m.On("Ingest", mock.Anything, mock.Anything).Return(nil, ingest.ErrStoreUnavailable)
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "transaction failed",
			body: map[string]interface{}{"engineer": "dave", "payload": "{}"},
			mockSetup: func(m *MockIngester) {
				m.On("Ingest", mock.Anything, mock.Anything).
					Return(nil, errors.Join(ingest.ErrIngestFailed, errors.New("disk full")))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				assert.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "failed to ingest memo", resp.Error)
				assert.Contains(t, resp.Details["error"], "disk full")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := new(MockIngester)
			tt.mockSetup(ingester)

			h := NewMemoHandlers(ingester, new(MockMemoReader))
			rec := postMemo(t, h, tt.body)

			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
			ingester.AssertExpectations(t)
		})
	}
}

func TestMemoHandlers_CreateMemo_InvalidJSON(t *testing.T) {
	h := NewMemoHandlers(new(MockIngester), new(MockMemoReader))

	req := httptest.NewRequest(http.MethodPost, "/api/memos", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.CreateMemo(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestMemoHandlers_ListMemos tests filter parsing.
func TestMemoHandlers_ListMemos(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		mockSetup      func(*MockMemoReader)
		expectedStatus int
	}{
		{
			name:        "defaults",
			queryParams: "",
			mockSetup: func(m *MockMemoReader) {
				m.On("ListMemos", mock.Anything, mock.MatchedBy(func(f storage.MemoFilter) bool {
					return f.Page == 1 && f.Limit == 50 && f.From.IsZero() && f.To.IsZero()
				})).Return(&storage.PaginatedResult[types.Memo]{
					Items: []types.Memo{{ID: 1, Engineer: "alice"}}, Total: 1, Page: 1, PageSize: 50,
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:        "filters",
			queryParams: "?engineer=alice&severity=High&activity_type=Other&search=pump&from=2024-01-01&to=2024-01-31&page=2&limit=10",
			mockSetup: func(m *MockMemoReader) {
				m.On("ListMemos", mock.Anything, mock.MatchedBy(func(f storage.MemoFilter) bool {
					endOfDay := time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC)
					return f.Engineer == "alice" && f.Severity == "High" && f.ActivityType == "Other" &&
						f.Search == "pump" && f.Page == 2 && f.Limit == 10 &&
						f.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) &&
						f.To.Equal(endOfDay)
				})).Return(&storage.PaginatedResult[types.Memo]{Items: []types.Memo{}, Page: 2, PageSize: 10}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad from date",
			queryParams:    "?from=yesterday",
			mockSetup:      func(m *MockMemoReader) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "store error",
			queryParams: "",
			mockSetup: func(m *MockMemoReader) {
				m.On("ListMemos", mock.Anything, mock.Anything).Return(nil, errors.New("db closed"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockMemoReader)
			tt.mockSetup(reader)

			h := NewMemoHandlers(new(MockIngester), reader)
			req := httptest.NewRequest(http.MethodGet, "/api/memos"+tt.queryParams, nil)
			rec := httptest.NewRecorder()
			h.ListMemos(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			reader.AssertExpectations(t)
		})
	}
}

func TestMemoHandlers_GetMemo(t *testing.T) {
	reader := new(MockMemoReader)
	reader.On("GetMemo", mock.Anything, int64(7)).Return(&types.MemoDetail{
		Memo:        types.Memo{ID: 7, Engineer: "alice"},
		Maintenance: []*types.Maintenance{{ComponentRef: types.ComponentRef{Raw: "hp pump", Canonical: "High Pressure Pump 3"}}},
	}, nil)
	reader.On("GetMemo", mock.Anything, int64(8)).Return(nil, storage.ErrNotFound)

	h := NewMemoHandlers(new(MockIngester), reader)

	req := httptest.NewRequest(http.MethodGet, "/api/memos/7", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()
	h.GetMemo(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "High Pressure Pump 3")

	req = httptest.NewRequest(http.MethodGet, "/api/memos/8", nil)
	req.SetPathValue("id", "8")
	rec = httptest.NewRecorder()
	h.GetMemo(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/memos/abc", nil)
	req.SetPathValue("id", "abc")
	rec = httptest.NewRecorder()
	h.GetMemo(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reader.AssertExpectations(t)
}

func TestMemoHandlers_DeleteMemo(t *testing.T) {
	reader := new(MockMemoReader)
	reader.On("DeleteMemo", mock.Anything, int64(3)).Return(nil)
	reader.On("DeleteMemo", mock.Anything, int64(4)).Return(storage.ErrNotFound)

	h := NewMemoHandlers(new(MockIngester), reader)

	req := httptest.NewRequest(http.MethodDelete, "/api/memos/3", nil)
	req.SetPathValue("id", "3")
	rec := httptest.NewRecorder()
	h.DeleteMemo(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/memos/4", nil)
	req.SetPathValue("id", "4")
	rec = httptest.NewRecorder()
	h.DeleteMemo(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reader.AssertExpectations(t)
}

func putMemo(t *testing.T, h *MemoHandlers, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/memos/"+id, strings.NewReader(body))
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.UpdateMemo(rec, req)
	return rec
}

func TestMemoHandlers_UpdateMemo(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		body           string
		match          func(storage.MemoUpdate) bool
		storeErr       error
		expectedStatus int
	}{
		{
			name: "notes and numeric duration",
			id:   "5",
			body: `{"additional_notes": "parts ordered", "duration_hours": 2.5, "severity": "high"}`,
			match: func(u storage.MemoUpdate) bool {
				return u.AdditionalNotes != nil && *u.AdditionalNotes == "parts ordered" &&
					u.DurationHours != nil && *u.DurationHours == 2.5 && !u.ClearDuration &&
					u.Severity != nil && *u.Severity == types.SeverityHigh &&
					u.Summary == nil && u.Engineer == nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "duration as text",
			id:   "5",
			body: `{"duration_hours": " 1.75 "}`,
			match: func(u storage.MemoUpdate) bool {
				return u.DurationHours != nil && *u.DurationHours == 1.75
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unparseable duration clears it",
			id:   "5",
			body: `{"duration_hours": "most of the morning"}`,
			match: func(u storage.MemoUpdate) bool {
				return u.DurationHours == nil && u.ClearDuration
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "omitted duration is unchanged",
			id:   "5",
			body: `{"summary": "edited"}`,
			match: func(u storage.MemoUpdate) bool {
				return u.DurationHours == nil && !u.ClearDuration && *u.Summary == "edited"
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown memo",
			id:             "99",
			body:           `{"summary": "x"}`,
			match:          func(storage.MemoUpdate) bool { return true },
			storeErr:       storage.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "store rejects severity",
			id:             "5",
			body:           `{"severity": "apocalyptic"}`,
			match:          func(u storage.MemoUpdate) bool { return *u.Severity == "apocalyptic" },
			storeErr:       storage.ErrInvalidInput,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad id",
			id:             "abc",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad json",
			id:             "5",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockMemoReader)
			if tt.match != nil {
				call := reader.On("UpdateMemo", mock.Anything, mock.AnythingOfType("int64"), mock.MatchedBy(tt.match))
				if tt.storeErr != nil {
					call.Return(nil, tt.storeErr)
				} else {
					call.Return(&types.Memo{ID: 5, Engineer: "alice", AdditionalNotes: "parts ordered"}, nil)
				}
			}

			rec := putMemo(t, NewMemoHandlers(new(MockIngester), reader), tt.id, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.match != nil {
				reader.AssertExpectations(t)
			}
		})
	}
}

func TestMemoHandlers_ListEngineers(t *testing.T) {
	reader := new(MockMemoReader)
	reader.On("ListEngineers", mock.Anything).Return([]string{"alice", "bob"}, nil)

	h := NewMemoHandlers(new(MockIngester), reader)
	rec := httptest.NewRecorder()
	h.ListEngineers(rec, httptest.NewRequest(http.MethodGet, "/api/engineers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"alice", "bob"}, body["engineers"])
}

func TestPayloadBytes(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(payloadBytes(json.RawMessage(`{"a":1}`))))
	assert.Equal(t, `{"a":1}`, string(payloadBytes(json.RawMessage(`"{\"a\":1}"`))))

	p := extraction.Parse(payloadBytes(json.RawMessage(`"not json"`)))
	assert.Equal(t, "not json", p.ParseError)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	assert.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate("2024-02-29")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-02-29T08:30:00Z")
	assert.NoError(t, err)
	assert.Equal(t, 8, d.Hour())

	_, err = parseDate("02/29/2024")
	assert.Error(t, err)
}
