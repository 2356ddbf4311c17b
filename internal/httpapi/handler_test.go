package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"identity-sessions/internal/audit"
	authservice "identity-sessions/internal/auth/service"
	deviceservice "identity-sessions/internal/device/service"
	"identity-sessions/internal/mail"
	"identity-sessions/internal/metrics"
	"identity-sessions/internal/security"
	sessiondomain "identity-sessions/internal/session/domain"
	sessionservice "identity-sessions/internal/session/service"
	userdomain "identity-sessions/internal/user/domain"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*userdomain.User{}}
}

func (m *memUserStore) find(match func(*userdomain.User) bool) *userdomain.User {
	for _, u := range m.users {
		if u.DeletedAt == nil && match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *userdomain.User) bool { return u.ID == id }), nil
}

func (m *memUserStore) GetByLoginOrEmail(_ context.Context, v string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *userdomain.User) bool { return u.Login == v || u.Email == v }), nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *userdomain.User) bool { return u.Email == email }), nil
}

func (m *memUserStore) GetByConfirmationCode(_ context.Context, code string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *userdomain.User) bool {
		return u.EmailConfirmation != nil && u.EmailConfirmation.Code == code
	}), nil
}

func (m *memUserStore) GetByRecoveryCode(_ context.Context, code string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *userdomain.User) bool {
		return u.PasswordRecovery != nil && u.PasswordRecovery.Code == code
	}), nil
}

func (m *memUserStore) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) Save(_ context.Context, u *userdomain.User) error {
	return m.Create(context.Background(), u)
}

func (m *memUserStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = map[string]*userdomain.User{}
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions []sessiondomain.Session
}

func (m *memSessionStore) GetActiveByUserAndDevice(_ context.Context, userID, deviceID string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := m.sessions[i]
		if s.UserID == userID && s.DeviceID == deviceID && !s.IsRevoked() {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessionStore) GetLatestByUserAndDevice(_ context.Context, userID, deviceID string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *sessiondomain.Session
	for i := range m.sessions {
		s := m.sessions[i]
		if s.UserID != userID || s.DeviceID != deviceID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *memSessionStore) GetActiveByDevice(_ context.Context, deviceID string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := m.sessions[i]
		if s.DeviceID == deviceID && !s.IsRevoked() {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessionStore) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sessiondomain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (m *memSessionStore) Create(_ context.Context, s sessiondomain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memSessionStore) RotateToken(_ context.Context, userID, deviceID, oldHash, newHash string, now, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.UserID == userID && s.DeviceID == deviceID && !s.IsRevoked() && s.TokenHash == oldHash {
			s.TokenHash = newHash
			s.LastActiveAt = now
			s.ExpiresAt = expiresAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memSessionStore) UpdateToken(_ context.Context, userID, deviceID, newHash string, now, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.UserID == userID && s.DeviceID == deviceID && !s.IsRevoked() {
			s.TokenHash = newHash
			s.LastActiveAt = now
			s.ExpiresAt = expiresAt
		}
	}
	return nil
}

func (m *memSessionStore) Revoke(_ context.Context, userID, deviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.UserID == userID && s.DeviceID == deviceID && !s.IsRevoked() {
			t := at
			s.RevokedAt = &t
		}
	}
	return nil
}

func (m *memSessionStore) RevokeAllExcept(_ context.Context, userID, currentDeviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.UserID == userID && s.DeviceID != currentDeviceID && !s.IsRevoked() {
			t := at
			s.RevokedAt = &t
		}
	}
	return nil
}

func (m *memSessionStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	return nil
}

type testAPI struct {
	router   http.Handler
	users    *memUserStore
	sessions *memSessionStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	users := newMemUserStore()
	sessions := &memSessionStore{}
	hasher := security.NewHasher(4)
	tokens := security.NewTestTokenProvider(10*time.Minute, 24*time.Hour)
	accounts := authservice.NewAccountService(users, hasher, mail.NoopSender{}, zerolog.Nop(), 24*time.Hour, time.Hour)
	verifier := authservice.NewCredentialVerifier(users, hasher)
	lifecycle := sessionservice.NewLifecycleService(verifier, sessions, tokens, audit.Nop{})
	router := NewRouter(Options{
		Accounts:        accounts,
		Lifecycle:       lifecycle,
		Devices:         deviceservice.NewDirectory(sessions),
		Tokens:          tokens,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		Log:             zerolog.Nop(),
		RateLimit:       100,
		RateLimitWindow: time.Second,
		Resetters:       []DataResetter{sessions, users},
	})
	return &testAPI{router: router, users: users, sessions: sessions}
}

type apiRequest struct {
	method, path, ip, userAgent string
	body                        any
	bearer                      string
	cookie                      string
}

func (a *testAPI) do(t *testing.T, req apiRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewBuffer(b)
	} else {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.ip == "" {
		req.ip = "10.0.0.1"
	}
	r.RemoteAddr = req.ip + ":54321"
	if req.userAgent == "" {
		req.userAgent = "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0 Safari/537.36"
	}
	r.Header.Set("User-Agent", req.userAgent)
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.cookie != "" {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: req.cookie})
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func refreshCookieValue(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c.Value
		}
	}
	t.Fatal("response carries no refresh cookie")
	return ""
}

func accessTokenFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatal("empty accessToken")
	}
	return body.AccessToken
}

// register creates and confirms a user through the API.
func (a *testAPI) register(t *testing.T, login, email, password string) {
	t.Helper()
	w := a.do(t, apiRequest{method: http.MethodPost, path: "/auth/registration",
		body: map[string]string{"login": login, "email": email, "password": password}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("registration: status %d, body %s", w.Code, w.Body.String())
	}
	u, err := a.users.GetByEmail(context.Background(), email)
	if err != nil || u == nil {
		t.Fatalf("registered user not found: %v", err)
	}
	w = a.do(t, apiRequest{method: http.MethodPost, path: "/auth/registration-confirmation",
		body: map[string]string{"code": u.EmailConfirmation.Code}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("confirmation: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice", "alice@example.com", "password1")

	// Login sets the refresh cookie and returns an access token.
	w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"loginOrEmail": "alice", "password": "password1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", w.Code, w.Body.String())
	}
	refresh := refreshCookieValue(t, w)
	access := accessTokenFrom(t, w)

	// The access token opens /auth/me.
	w = api.do(t, apiRequest{method: http.MethodGet, path: "/auth/me", bearer: access})
	if w.Code != http.StatusOK {
		t.Fatalf("me: status %d, body %s", w.Code, w.Body.String())
	}
	var me struct {
		Email  string `json:"email"`
		Login  string `json:"login"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Login != "alice" || me.Email != "alice@example.com" || me.UserID == "" {
		t.Fatalf("unexpected me payload: %+v", me)
	}

	// Refresh rotates the cookie; the old one stops working.
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/refresh-token", cookie: refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d, body %s", w.Code, w.Body.String())
	}
	rotated := refreshCookieValue(t, w)
	if rotated == refresh {
		t.Fatal("refresh must rotate the cookie")
	}
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/refresh-token", cookie: refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("spent cookie: status %d, want 401", w.Code)
	}

	// Logout revokes the session and clears the cookie.
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/logout", cookie: rotated})
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d, body %s", w.Code, w.Body.String())
	}
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/refresh-token", cookie: rotated})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d, want 401", w.Code)
	}
}

func TestLoginFailureEnvelope(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice", "alice@example.com", "password1")

	w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"loginOrEmail": "alice", "password": "wrong"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(env.ErrorsMessages) != 1 || env.ErrorsMessages[0].Message != "Invalid credentials" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestRegistrationValidationEnvelope(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/registration",
		body: map[string]string{"login": "x", "email": "bad", "password": "short"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(env.ErrorsMessages) == 0 || env.ErrorsMessages[0].Field != "login" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestMeRequiresBearer(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, apiRequest{method: http.MethodGet, path: "/auth/me"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", w.Code)
	}
	w = api.do(t, apiRequest{method: http.MethodGet, path: "/auth/me", bearer: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", w.Code)
	}
}

func TestDeviceEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice", "alice@example.com", "password1")
	api.register(t, "bob", "bob@example.com", "password2")

	firefox := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Gecko/20100101 Firefox/121.0"

	login := func(user, pass, ip, ua string) string {
		w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login", ip: ip, userAgent: ua,
			body: map[string]string{"loginOrEmail": user, "password": pass}})
		if w.Code != http.StatusOK {
			t.Fatalf("login %s: status %d, body %s", user, w.Code, w.Body.String())
		}
		return refreshCookieValue(t, w)
	}

	current := login("alice", "password1", "10.0.0.1", "")
	login("alice", "password1", "10.0.0.2", firefox)
	bobCookie := login("bob", "password2", "10.0.0.3", firefox)

	// Alice sees her two devices.
	w := api.do(t, apiRequest{method: http.MethodGet, path: "/security/devices", cookie: current})
	if w.Code != http.StatusOK {
		t.Fatalf("list devices: status %d, body %s", w.Code, w.Body.String())
	}
	var devices []deviceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	for _, d := range devices {
		if _, err := time.Parse(time.RFC3339, d.LastActiveDate); err != nil {
			t.Fatalf("lastActiveDate %q is not RFC3339: %v", d.LastActiveDate, err)
		}
	}

	// Bob cannot revoke Alice's device.
	var aliceOther string
	for _, d := range devices {
		if d.IP == "10.0.0.2" {
			aliceOther = d.DeviceID
		}
	}
	w = api.do(t, apiRequest{method: http.MethodDelete, path: "/security/devices/" + aliceOther, cookie: bobCookie})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign revoke: status %d, want 403", w.Code)
	}

	// Unknown device is a 404.
	w = api.do(t, apiRequest{method: http.MethodDelete, path: "/security/devices/no-such-device", cookie: current})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device: status %d, want 404", w.Code)
	}

	// Alice revokes her other device.
	w = api.do(t, apiRequest{method: http.MethodDelete, path: "/security/devices/" + aliceOther, cookie: current})
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke device: status %d, body %s", w.Code, w.Body.String())
	}
	w = api.do(t, apiRequest{method: http.MethodGet, path: "/security/devices", cookie: current})
	devices = nil
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("after revoke: got %d devices, want 1", len(devices))
	}

	// DELETE /security/devices keeps only the calling session.
	login("alice", "password1", "10.0.0.4", firefox)
	w = api.do(t, apiRequest{method: http.MethodDelete, path: "/security/devices", cookie: current})
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke others: status %d, body %s", w.Code, w.Body.String())
	}
	w = api.do(t, apiRequest{method: http.MethodGet, path: "/security/devices", cookie: current})
	devices = nil
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("after revoke others: got %d devices, want 1", len(devices))
	}

	// Bob's session is untouched.
	w = api.do(t, apiRequest{method: http.MethodGet, path: "/security/devices", cookie: bobCookie})
	if w.Code != http.StatusOK {
		t.Fatalf("bob list: status %d", w.Code)
	}
}

func TestPasswordRecoveryFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice", "alice@example.com", "password1")

	w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/password-recovery",
		body: map[string]string{"email": "alice@example.com"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("recovery: status %d, body %s", w.Code, w.Body.String())
	}
	// Unknown emails get the same answer.
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/password-recovery",
		body: map[string]string{"email": "ghost@example.com"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("unknown email: status %d, want 204", w.Code)
	}

	u, _ := api.users.GetByEmail(context.Background(), "alice@example.com")
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/new-password",
		body: map[string]string{"newPassword": "newpassword", "recoveryCode": u.PasswordRecovery.Code}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("new password: status %d, body %s", w.Code, w.Body.String())
	}

	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"loginOrEmail": "alice", "password": "newpassword"}})
	if w.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d, body %s", w.Code, w.Body.String())
	}
	w = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"loginOrEmail": "alice", "password": "password1"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login with old password: status %d, want 401", w.Code)
	}
}

func TestRateLimitEnvelope(t *testing.T) {
	users := newMemUserStore()
	sessions := &memSessionStore{}
	hasher := security.NewHasher(4)
	tokens := security.NewTestTokenProvider(10*time.Minute, 24*time.Hour)
	verifier := authservice.NewCredentialVerifier(users, hasher)
	router := NewRouter(Options{
		Accounts:        authservice.NewAccountService(users, hasher, mail.NoopSender{}, zerolog.Nop(), 24*time.Hour, time.Hour),
		Lifecycle:       sessionservice.NewLifecycleService(verifier, sessions, tokens, audit.Nop{}),
		Devices:         deviceservice.NewDirectory(sessions),
		Tokens:          tokens,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		Log:             zerolog.Nop(),
		RateLimit:       5,
		RateLimitWindow: time.Minute,
	})
	api := &testAPI{router: router, users: users, sessions: sessions}

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
			body: map[string]string{"loginOrEmail": "nobody", "password": "nothing"}})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request: status %d, want 429", last.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(last.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(env.ErrorsMessages) != 1 || env.ErrorsMessages[0].Message != "Too many requests" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDeleteAllData(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice", "alice@example.com", "password1")
	w := api.do(t, apiRequest{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"loginOrEmail": "alice", "password": "password1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d", w.Code)
	}

	w = api.do(t, apiRequest{method: http.MethodDelete, path: "/testing/all-data"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete all data: status %d, body %s", w.Code, w.Body.String())
	}
	if u, _ := api.users.GetByEmail(context.Background(), "alice@example.com"); u != nil {
		t.Fatal("users not wiped")
	}
	if len(api.sessions.sessions) != 0 {
		t.Fatal("sessions not wiped")
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, apiRequest{method: http.MethodGet, path: "/healthz"})
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("healthz body: %q", w.Body.String())
	}
}
