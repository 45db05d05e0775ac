package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"watrack/backend/internal/security"
	"watrack/backend/internal/server/middleware"
	sessiondomain "watrack/backend/internal/session/domain"
	trackingdomain "watrack/backend/internal/tracking/domain"
	trackingservice "watrack/backend/internal/tracking/service"
	"watrack/backend/internal/wa/authstate"
	"watrack/backend/internal/wa/controller"
	"watrack/backend/internal/wa/qrcache"
	"watrack/backend/internal/wa/registry"
	"watrack/backend/internal/wa/subscription"
	"watrack/backend/internal/wa/transport"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) Upsert(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) LatestByUser(ctx context.Context, userID string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *sessiondomain.Session
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memSessionRepo) LatestByUserAndStatus(ctx context.Context, userID string, status sessiondomain.Status) (*sessiondomain.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) UpdateStatus(ctx context.Context, id string, status sessiondomain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Status = status
	}
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

type stubClient struct {
	events chan transport.Event
	once   sync.Once
}

func newStubClient() *stubClient {
	return &stubClient{events: make(chan transport.Event, 16)}
}

func (s *stubClient) Events() <-chan transport.Event { return s.events }
func (s *stubClient) SubscribePresence(ctx context.Context, phoneNumber string) error {
	return nil
}
func (s *stubClient) ProfilePictureURL(ctx context.Context, phoneNumber string) (string, error) {
	return "https://pps.example/" + phoneNumber, nil
}
func (s *stubClient) IsConnected() bool                { return true }
func (s *stubClient) Logout(ctx context.Context) error { s.Disconnect(); return nil }
func (s *stubClient) Disconnect()                      { s.once.Do(func() { close(s.events) }) }

type stubDialer struct {
	mu      sync.Mutex
	clients []*stubClient
}

func (d *stubDialer) Dial(ctx context.Context, sessionID string, state *authstate.State) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newStubClient()
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *stubDialer) last() *stubClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

type stubTracking struct{}

func (stubTracking) FindOrCreate(ctx context.Context, userID, phoneNumber string) (int64, error) {
	return 1, nil
}

func (stubTracking) ListByUser(ctx context.Context, userID string) ([]*trackingdomain.TrackedNumber, error) {
	return nil, nil
}

type noIntervals struct{}

func (noIntervals) OpenInterval(ctx context.Context, trackingID int64, at time.Time) error {
	return nil
}

func (noIntervals) CloseInterval(ctx context.Context, trackingID int64, at time.Time) (int64, bool, error) {
	return 0, false, nil
}

type fixture struct {
	router   http.Handler
	sessions *memSessionRepo
	dialer   *stubDialer
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := newMemSessionRepo()
	dialer := &stubDialer{}
	crypter, err := security.NewBlobCrypter(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewBlobCrypter: %v", err)
	}
	ctrl := controller.New(
		sessions,
		nil,
		authstate.NewCodec(crypter),
		dialer,
		registry.New(),
		qrcache.NewMemoryCache(),
		time.Minute,
		subscription.NewManager(stubTracking{}, "91"),
		trackingservice.NewRecorder(noIntervals{}, nil),
		nil,
	)
	tokens := security.NewHMACTokenProvider([]byte("test-secret"), "watrack-auth", "watrack-api", time.Hour)
	token, _, err := tokens.IssueAccess("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	h := NewHandler(ctrl, sessions, "http://localhost:3000")
	r := mux.NewRouter()
	h.RegisterPublic(r)
	protected := r.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(tokens))
	h.Register(protected)

	return &fixture{router: r, sessions: sessions, dialer: dialer, token: token}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/wa/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.SessionID
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodGet, "/wa/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status struct {
		Status  string `json:"status"`
		Running bool   `json:"running"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != string(sessiondomain.StatusPending) || status.Running {
		t.Errorf("fresh session status = %+v", status)
	}

	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start: %d: %s", rec.Code, rec.Body.String())
	}

	// Starting again is an idempotent no-op: same status payload, no error.
	rec = f.do(t, http.MethodPost, "/wa/sessions/"+id+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second start = %d, want 200", rec.Code)
	}
	var again struct {
		Running bool `json:"running"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &again); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !again.Running {
		t.Error("second start should report the running session")
	}

	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/end", ""); rec.Code != http.StatusOK {
		t.Errorf("end = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/wa/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("status after end = %d, want 404 (session row deleted)", rec.Code)
	}
}

func TestSessionNotFoundAndUnauthorized(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/wa/sessions/wa-missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing session = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/wa/sessions", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}
}

func TestQRFlowEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start: %d", rec.Code)
	}
	f.dialer.last().events <- transport.QREvent{Code: "2@pairing-code"}

	var qrURL string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := f.do(t, http.MethodGet, "/wa/sessions/"+id, "")
		var status struct {
			QRURL string `json:"qr_url"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &status)
		if status.QRURL != "" {
			qrURL = status.QRURL
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if qrURL == "" {
		t.Fatal("qr_url never appeared in session status")
	}

	// The QR image is served without a bearer token; the token in the URL is
	// the only credential.
	path := qrURL[strings.Index(qrURL, "/wa/qr/"):]
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr image = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("qr image body is empty")
	}

	req = httptest.NewRequest(http.MethodGet, "/wa/qr/ffffffffffffffffffffffffffffffff", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown token = %d, want 404", rec.Code)
	}
}

func TestSubscribeEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	// Not running yet: subscribe must be refused.
	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/subscribe", `{"numbers":["9876543210"]}`); rec.Code != http.StatusConflict {
		t.Errorf("subscribe before start = %d, want 409", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start: %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/subscribe", `{"numbers":["9876543210"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe = %d: %s", rec.Code, rec.Body.String())
	}
	var outcomes []struct {
		PhoneNumber string `json:"phone_number"`
		Subscribed  bool   `json:"subscribed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcomes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].Subscribed || outcomes[0].PhoneNumber != "919876543210" {
		t.Errorf("outcomes = %+v", outcomes)
	}

	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/subscribe", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty numbers = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/unsubscribe", `{"numbers":["9876543210"]}`); rec.Code != http.StatusOK {
		t.Errorf("unsubscribe = %d", rec.Code)
	}
}

func TestProfilePictureEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	if rec := f.do(t, http.MethodPost, "/wa/sessions/"+id+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start: %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/wa/sessions/"+id+"/profile-picture?number=9876543210", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile picture = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["url"] != "https://pps.example/919876543210" {
		t.Errorf("url = %q", body["url"])
	}

	if rec := f.do(t, http.MethodGet, "/wa/sessions/"+id+"/profile-picture", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing number = %d, want 400", rec.Code)
	}
}
