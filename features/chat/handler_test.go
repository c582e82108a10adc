package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opensim-assistant/features/chat"
	"opensim-assistant/internal/answer"
)

type MockAsker struct{ mock.Mock }

func (m *MockAsker) Ask(ctx context.Context, q string) (answer.Response, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(answer.Response), args.Error(1)
}

var okResponse = answer.Response{
	Status:  answer.StatusOK,
	Answer:  "Here's what I found about 'markers':\n\nPlace markers on bony landmarks.",
	Sources: []answer.Source{{Title: "Markers", URL: "https://x/markers", Type: "guide", Score: 0.8}},
}

func formRequest(q string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(url.Values{"query": {q}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, q string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("query", q))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/query", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_Query(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		question   string
		resp       answer.Response
		err        error
		wantStatus int
		wantAnswer string
		wantCode   string
	}{
		{
			name:       "form",
			req:        func(*testing.T) *http.Request { return formRequest("markers") },
			question:   "markers",
			resp:       okResponse,
			wantStatus: http.StatusOK,
			wantAnswer: okResponse.Answer,
		},
		{
			name:       "multipart form",
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, " markers ") },
			question:   "markers",
			resp:       okResponse,
			wantStatus: http.StatusOK,
			wantAnswer: okResponse.Answer,
		},
		{
			name:       "json",
			req:        func(*testing.T) *http.Request { return jsonRequest(`{"query":"markers"}`) },
			question:   "markers",
			resp:       okResponse,
			wantStatus: http.StatusOK,
			wantAnswer: okResponse.Answer,
		},
		{
			name:       "empty question",
			req:        func(*testing.T) *http.Request { return formRequest("") },
			question:   "",
			resp:       answer.Response{Status: answer.StatusNoResults, Answer: answer.NoResultsMessage, Sources: []answer.Source{}},
			wantStatus: http.StatusOK,
			wantAnswer: answer.NoResultsMessage,
		},
		{
			name:       "not ready",
			req:        func(*testing.T) *http.Request { return formRequest("markers") },
			question:   "markers",
			resp:       answer.Response{Status: answer.StatusNotReady, Answer: answer.NotReadyMessage, Sources: []answer.Source{}},
			wantStatus: http.StatusServiceUnavailable,
			wantAnswer: answer.NotReadyMessage,
		},
		{
			name:       "embedding failure",
			req:        func(*testing.T) *http.Request { return formRequest("markers") },
			question:   "markers",
			err:        errors.New("embed question: refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "timeout",
			req:        func(*testing.T) *http.Request { return formRequest("markers") },
			question:   "markers",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
		},
		{
			name:       "malformed json",
			req:        func(*testing.T) *http.Request { return jsonRequest(`{"query":`) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := new(MockAsker)
			asker.On("Ask", mock.Anything, tt.question).Return(tt.resp, tt.err)

			h := chat.NewHandler(asker, chat.NewHistory(10), time.Second)
			w := httptest.NewRecorder()
			h.Query(w, tt.req(t))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"].(map[string]any)["code"])
				return
			}
			assert.Equal(t, tt.wantAnswer, body["answer"])
			assert.Equal(t, tt.resp.Status, body["status"])
			assert.NotNil(t, body["sources"])
		})
	}
}

func TestHandler_Query_SourcesShape(t *testing.T) {
	asker := new(MockAsker)
	asker.On("Ask", mock.Anything, "markers").Return(okResponse, nil)

	w := httptest.NewRecorder()
	chat.NewHandler(asker, nil, 0).Query(w, formRequest("markers"))

	var body struct {
		Sources []map[string]any `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "https://x/markers", body.Sources[0]["source"])
	assert.Equal(t, "Markers", body.Sources[0]["title"])
	assert.Equal(t, "guide", body.Sources[0]["type"])
}

func TestHandler_Clear(t *testing.T) {
	asker := new(MockAsker)
	asker.On("Ask", mock.Anything, "markers").Return(okResponse, nil)
	history := chat.NewHistory(10)
	h := chat.NewHandler(asker, history, 0)

	h.Query(httptest.NewRecorder(), formRequest("markers"))
	require.Len(t, history.Entries(), 1)

	w := httptest.NewRecorder()
	h.Clear(w, httptest.NewRequest(http.MethodPost, "/clear", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"Chat history cleared"}`, w.Body.String())
	assert.Empty(t, history.Entries())
}

func TestHandler_Index(t *testing.T) {
	w := httptest.NewRecorder()
	chat.NewHandler(new(MockAsker), nil, 0).Index(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "OpenSim Assistant")
	for _, s := range chat.Suggestions {
		assert.Contains(t, body, s)
	}
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	chat.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHistory_Bounded(t *testing.T) {
	h := chat.NewHistory(2)
	for _, q := range []string{"a", "b", "c"} {
		h.Append(chat.Exchange{Question: q})
	}
	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Question)
	assert.Equal(t, "c", entries[1].Question)
}
