package otrs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"3tcapital/otrs_connector/internal/infrastructure/cache"
	"3tcapital/otrs_connector/internal/testutil"
)

// fakeOTRS emulates the GenericInterface REST connector closely enough for client tests.
type fakeOTRS struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	sessionCount  int
	validSessions map[string]bool
	tickets       map[string]map[string]any
	requests      []recordedRequest
	failSessions  int // SessionCreate calls to fail with 503 before succeeding
	rejectLogin   bool
	staleAsParam  bool
}

type recordedRequest struct {
	Method    string
	Path      string
	SessionID string
	Body      map[string]any
}

func newFakeOTRS(t *testing.T) *fakeOTRS {
	t.Helper()

	f := &fakeOTRS{
		t:             t,
		validSessions: make(map[string]bool),
		tickets:       make(map[string]map[string]any),
	}

	r := chi.NewRouter()
	r.Post("/Session", f.handleSessionCreate)
	r.Get("/Ticket/{id}", f.handleTicketGet)
	r.Post("/Ticket", f.handleTicketCreate)
	r.Patch("/Ticket/{id}", f.handleTicketUpdate)
	r.Post("/TicketSearch", f.handleTicketSearch)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOTRS) URL() string { return f.server.URL }

func (f *fakeOTRS) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCount
}

func (f *fakeOTRS) ExpireAllSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validSessions = make(map[string]bool)
}

func (f *fakeOTRS) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeOTRS) AddTicket(id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields["TicketID"] = id
	f.tickets[id] = fields
}

func (f *fakeOTRS) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSessions > 0 {
		f.failSessions--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if f.rejectLogin || body["UserLogin"] != "agent" || body["Password"] != "secret" {
		writeFakeJSON(w, map[string]any{"Error": map[string]any{
			"ErrorCode":    "SessionCreate.AuthFail",
			"ErrorMessage": "SessionCreate: Authorization failing!",
		}})
		return
	}

	f.sessionCount++
	id := fmt.Sprintf("session-%d", f.sessionCount)
	f.validSessions[id] = true
	writeFakeJSON(w, map[string]any{"SessionID": id})
}

// authorize records the request and reports whether its session is valid.
func (f *fakeOTRS) authorize(w http.ResponseWriter, r *http.Request, operation string, body map[string]any) bool {
	sessionID := r.URL.Query().Get("SessionID")
	if sessionID == "" && body != nil {
		sessionID, _ = body["SessionID"].(string)
	}

	f.requests = append(f.requests, recordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		SessionID: sessionID,
		Body:      body,
	})

	if !f.validSessions[sessionID] {
		if f.staleAsParam {
			writeFakeJSON(w, map[string]any{"Error": map[string]any{
				"ErrorCode":    operation + ".InvalidParameter",
				"ErrorMessage": operation + ": SessionID is invalid!",
			}})
			return false
		}
		writeFakeJSON(w, map[string]any{"Error": map[string]any{
			"ErrorCode":    operation + ".AuthFail",
			"ErrorMessage": operation + ": Authorization failing!",
		}})
		return false
	}
	return true
}

func (f *fakeOTRS) handleTicketGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorize(w, r, "TicketGet", nil) {
		return
	}

	tk, ok := f.tickets[chi.URLParam(r, "id")]
	if !ok {
		writeFakeJSON(w, map[string]any{"Error": map[string]any{
			"ErrorCode":    "TicketGet.NotValid",
			"ErrorMessage": "TicketGet: Could not get Ticket data!",
		}})
		return
	}
	writeFakeJSON(w, map[string]any{"Ticket": []any{tk}})
}

func (f *fakeOTRS) handleTicketCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorize(w, r, "TicketCreate", body) {
		return
	}

	id := fmt.Sprintf("%d", 100+len(f.tickets))
	// Copy so the recorded request keeps what the client sent.
	fields := map[string]any{}
	if sent, ok := body["Ticket"].(map[string]any); ok {
		for k, v := range sent {
			fields[k] = v
		}
	}
	fields["TicketID"] = id
	fields["TicketNumber"] = "2024" + id
	f.tickets[id] = fields

	writeFakeJSON(w, map[string]any{"TicketID": id, "TicketNumber": "2024" + id, "ArticleID": "900"})
}

func (f *fakeOTRS) handleTicketUpdate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorize(w, r, "TicketUpdate", body) {
		return
	}

	id := chi.URLParam(r, "id")
	tk, ok := f.tickets[id]
	if !ok {
		writeFakeJSON(w, map[string]any{"Error": map[string]any{
			"ErrorCode":    "TicketUpdate.AccessDenied",
			"ErrorMessage": "TicketUpdate: User does not have access to the ticket!",
		}})
		return
	}
	if fields, ok := body["Ticket"].(map[string]any); ok {
		for k, v := range fields {
			tk[k] = v
		}
	}
	writeFakeJSON(w, map[string]any{"TicketID": id, "TicketNumber": tk["TicketNumber"]})
}

func (f *fakeOTRS) handleTicketSearch(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorize(w, r, "TicketSearch", body) {
		return
	}

	var ids []string
	if wanted, ok := body["TicketID"].([]any); ok {
		for _, v := range wanted {
			if id, ok := v.(string); ok {
				if _, exists := f.tickets[id]; exists {
					ids = append(ids, id)
				}
			}
		}
	}
	if len(ids) == 0 {
		// OTRS answers an empty search with an empty object.
		writeFakeJSON(w, map[string]any{})
		return
	}
	writeFakeJSON(w, map[string]any{"TicketID": ids})
}

func writeFakeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSession(t *testing.T, f *fakeOTRS, readTimeout, ttl time.Duration, opts ...cache.Option) *SessionManager {
	t.Helper()
	m, err := NewSessionManager(SessionConfig{
		BaseURL:     f.URL(),
		Login:       "agent",
		Password:    "secret",
		ReadTimeout: readTimeout,
		SessionTTL:  ttl,
		AuthRetries: 2,
	}, f.server.Client(), testutil.NewNullLogger(), opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.retryInterval = time.Millisecond
	return m
}

func newTestClient(t *testing.T, f *fakeOTRS) *Client {
	t.Helper()
	session := newTestSession(t, f, time.Second, time.Hour)
	return NewClient(ClientConfig{BaseURL: f.URL(), MaxConcurrentRequests: 10}, session, f.server.Client(), testutil.NewNullLogger())
}
