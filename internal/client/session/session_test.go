package session

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/arodchenko/inkwell/internal/client/backend"
	"github.com/arodchenko/inkwell/internal/client/credentials"
	"github.com/arodchenko/inkwell/internal/client/models"
	"github.com/arodchenko/inkwell/internal/client/signal"
	"github.com/arodchenko/inkwell/internal/common"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupStore(t *testing.T) credentials.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE credentials (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`)
	require.NoError(t, err)
	return credentials.NewSQLiteStore(db)
}

func storedToken(t *testing.T, s credentials.Store) string {
	t.Helper()
	tok, err := s.Get(context.Background())
	require.NoError(t, err)
	return tok
}

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

// ---- fake backend ----

// fakeBackend implements backend.Client for session manager tests.
type fakeBackend struct {
	mu   sync.Mutex
	cred string

	loginUser *models.User
	loginTok  string
	loginErr  error

	regUser *models.User
	regTok  string
	regErr  error

	currentUser   *models.User
	currentErr    error
	currentCalled bool

	logoutErr    error
	logoutCred   string
	logoutCalled chan struct{}

	lastLoginEmail string
	lastRegFields  models.RegistrationFields
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{logoutCalled: make(chan struct{}, 4)}
}

func (f *fakeBackend) Login(_ context.Context, email string, _ []byte) (*models.User, string, error) {
	f.mu.Lock()
	f.lastLoginEmail = email
	f.mu.Unlock()
	if f.loginErr != nil {
		return nil, "", f.loginErr
	}
	f.SetCredential(f.loginTok)
	return f.loginUser, f.loginTok, nil
}

func (f *fakeBackend) Register(_ context.Context, fields models.RegistrationFields) (*models.User, string, error) {
	f.mu.Lock()
	f.lastRegFields = fields
	f.mu.Unlock()
	if f.regErr != nil {
		return nil, "", f.regErr
	}
	f.SetCredential(f.regTok)
	return f.regUser, f.regTok, nil
}

func (f *fakeBackend) CurrentUser(context.Context) (*models.User, error) {
	f.mu.Lock()
	f.currentCalled = true
	f.mu.Unlock()
	return f.currentUser, f.currentErr
}

func (f *fakeBackend) Logout(context.Context) error {
	f.mu.Lock()
	f.logoutCred = f.cred
	f.mu.Unlock()
	f.logoutCalled <- struct{}{}
	return f.logoutErr
}

func (f *fakeBackend) SetCredential(token string) {
	f.mu.Lock()
	f.cred = token
	f.mu.Unlock()
}

func (f *fakeBackend) credential() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred
}

func (f *fakeBackend) currentWasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentCalled
}

func (f *fakeBackend) logoutSawCredential() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCred
}

func (f *fakeBackend) Close() error { return nil }

// ---- tests ----

func TestNewManager_StartsRestoring(t *testing.T) {
	m := NewManager(newFakeBackend(), setupStore(t), nil, nil)
	t.Cleanup(m.Close)

	st := m.State()
	require.Nil(t, st.User)
	require.True(t, st.Loading)
	require.Empty(t, st.Err)
}

func TestRestore_NoCredential(t *testing.T) {
	f := newFakeBackend()
	m := NewManager(f, setupStore(t), nil, nil)
	t.Cleanup(m.Close)

	m.Restore(context.Background())

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err)
	require.False(t, f.currentWasCalled())
}

func TestRestore_ValidCredential(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Set(context.Background(), "tok-1"))

	f := newFakeBackend()
	f.currentUser = &models.User{ID: "u-1", Username: "alice", Email: "a@b.com"}

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	m.Restore(context.Background())

	st := m.State()
	require.Equal(t, f.currentUser, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err)
	require.Equal(t, "tok-1", f.credential())
}

func TestRestore_FetchFails_ClearsCredentialSilently(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Set(context.Background(), "tok-stale"))

	f := newFakeBackend()
	f.currentErr = backend.ErrUnauthorized

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	m.Restore(context.Background())

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err, "restoration failures are never user-visible")
	require.Empty(t, storedToken(t, store))
}

func TestRestore_NoUserAnswer_SignsOut(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Set(context.Background(), "tok"))

	f := newFakeBackend() // currentUser nil, currentErr nil

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	m.Restore(context.Background())

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.Empty(t, storedToken(t, store))
}

func TestRestore_ExpiredToken_SkipsNetwork(t *testing.T) {
	store := setupStore(t)
	expired := mintToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, store.Set(context.Background(), expired))

	f := newFakeBackend()
	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	m.Restore(context.Background())

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.False(t, f.currentWasCalled(), "expired token must not hit the network")
	require.Empty(t, storedToken(t, store))
}

func TestRestore_RunsOnce(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Set(context.Background(), "tok"))

	f := newFakeBackend()
	f.currentUser = &models.User{ID: "u-1", Username: "alice"}

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	m.Restore(context.Background())

	// A second call must not re-run restoration.
	f.currentCalled = false
	m.Restore(context.Background())
	require.False(t, f.currentWasCalled())
}

func TestLogin_Success_PersistsCredential(t *testing.T) {
	store := setupStore(t)
	f := newFakeBackend()
	f.loginUser = &models.User{ID: "u-1", Username: "alice", Email: "a@b.com"}
	f.loginTok = "tok-login"

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)

	u, err := m.Login(context.Background(), "a@b.com", []byte("secret"))
	require.NoError(t, err)
	require.Equal(t, f.loginUser, u)

	st := m.State()
	require.Equal(t, f.loginUser, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err)
	require.Equal(t, "tok-login", storedToken(t, store))
	require.Equal(t, "a@b.com", f.lastLoginEmail)
}

func TestLogin_RoundTripThroughRestore(t *testing.T) {
	store := setupStore(t)
	alice := &models.User{ID: "u-1", Username: "alice", Email: "a@b.com"}

	f := newFakeBackend()
	f.loginUser = alice
	f.loginTok = "tok-rt"

	m := NewManager(f, store, nil, nil)
	_, err := m.Login(context.Background(), "a@b.com", []byte("secret"))
	require.NoError(t, err)
	m.Close()

	// A fresh process instance over the same store resolves to the
	// same user.
	f2 := newFakeBackend()
	f2.currentUser = alice

	m2 := NewManager(f2, store, nil, nil)
	t.Cleanup(m2.Close)
	m2.Restore(context.Background())

	require.Equal(t, alice, m2.State().User)
	require.Equal(t, "tok-rt", f2.credential())
}

func TestLogin_Rejected_KeepsUserAndRethrows(t *testing.T) {
	store := setupStore(t)
	alice := &models.User{ID: "u-1", Username: "alice"}

	f := newFakeBackend()
	f.loginUser = alice
	f.loginTok = "tok"

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	_, err := m.Login(context.Background(), "a@b.com", []byte("secret"))
	require.NoError(t, err)

	// Second attempt fails; the signed-in user must survive.
	f.loginErr = backend.ErrInvalidCredentials
	_, err = m.Login(context.Background(), "a@b.com", []byte("wrong"))
	require.ErrorIs(t, err, backend.ErrInvalidCredentials)

	st := m.State()
	require.Equal(t, alice, st.User)
	require.False(t, st.Loading)
	require.Equal(t, "Invalid email or password.", st.Err)
}

func TestLogin_ClearsPreviousError(t *testing.T) {
	f := newFakeBackend()
	f.loginErr = backend.ErrUnavailable

	m := NewManager(f, setupStore(t), nil, nil)
	t.Cleanup(m.Close)

	_, err := m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.Error(t, err)
	require.Equal(t, "Cannot reach the server. Please try again.", m.State().Err)

	f.loginErr = nil
	f.loginUser = &models.User{ID: "u-1", Username: "alice"}
	f.loginTok = "tok"

	_, err = m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.NoError(t, err)
	require.Empty(t, m.State().Err)
}

func TestRegister_Success(t *testing.T) {
	store := setupStore(t)
	f := newFakeBackend()
	f.regUser = &models.User{ID: "u-2", Username: "bob", Email: "b@c.com"}
	f.regTok = "tok-reg"

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)

	u, err := m.Register(context.Background(), models.RegistrationFields{
		Username: "bob", Email: "b@c.com", Password: []byte("pw"),
	})
	require.NoError(t, err)
	require.Equal(t, f.regUser, u)
	require.Equal(t, f.regUser, m.State().User)
	require.Equal(t, "tok-reg", storedToken(t, store))
	require.Equal(t, "bob", f.lastRegFields.Username)
}

func TestRegister_ValidationFailure(t *testing.T) {
	f := newFakeBackend()
	f.regErr = &backend.ValidationError{Fields: map[string][]string{
		"email": {"is already taken"},
	}}

	m := NewManager(f, setupStore(t), nil, nil)
	t.Cleanup(m.Close)

	_, err := m.Register(context.Background(), models.RegistrationFields{
		Username: "bob", Email: "b@c.com", Password: []byte("pw"),
	})

	var verr *backend.ValidationError
	require.ErrorAs(t, err, &verr)

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.Equal(t, "email is already taken", st.Err)
}

func TestLogout_AlwaysSignsOutLocally(t *testing.T) {
	store := setupStore(t)
	f := newFakeBackend()
	f.loginUser = &models.User{ID: "u-1", Username: "alice"}
	f.loginTok = "tok"
	f.logoutErr = backend.ErrUnavailable // remote failure must not matter

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)
	_, err := m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.NoError(t, err)

	m.Logout(context.Background())

	st := m.State()
	require.Nil(t, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err)
	require.Empty(t, storedToken(t, store))

	select {
	case <-f.logoutCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("remote logout was never attempted")
	}

	// The backend credential is dropped once the revocation request has
	// gone out, not before.
	require.Equal(t, "tok", f.logoutSawCredential())
	require.Eventually(t, func() bool { return f.credential() == "" },
		2*time.Second, 10*time.Millisecond)
}

func TestLogout_RevocationCarriesCredential(t *testing.T) {
	store := setupStore(t)

	authHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user":{"id":"u-1","username":"alice","email":"a@b.com","token":"tok-live"}}`))
		case "/api/users/logout":
			authHeader <- r.Header.Get(common.AuthorizationHeaderName)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	api := backend.NewHTTPClient(srv.URL, 2*time.Second, nil)
	m := NewManager(api, store, nil, nil)
	t.Cleanup(m.Close)

	_, err := m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.NoError(t, err)

	m.Logout(context.Background())

	select {
	case got := <-authHeader:
		require.Equal(t, common.AuthorizationScheme+" tok-live", got)
	case <-time.After(2 * time.Second):
		t.Fatal("revocation request never reached the server")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	store := setupStore(t)
	f := newFakeBackend()

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)

	m.Logout(context.Background())
	first := m.State()

	m.Logout(context.Background())
	require.Equal(t, first, m.State())
	require.Empty(t, storedToken(t, store))
}

func TestInvalidation_ResetsSession(t *testing.T) {
	store := setupStore(t)
	bus := signal.NewBus()
	t.Cleanup(bus.Close)

	f := newFakeBackend()
	f.loginUser = &models.User{ID: "u-1", Username: "alice"}
	f.loginTok = "tok"

	m := NewManager(f, store, bus, nil)
	t.Cleanup(m.Close)
	_, err := m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.NoError(t, err)

	bus.Publish("credential rejected by server")

	require.Eventually(t, func() bool {
		st := m.State()
		return st.User == nil && st.Err == ExpiredMessage
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInvalidation_AfterClose_Ignored(t *testing.T) {
	bus := signal.NewBus()
	t.Cleanup(bus.Close)

	f := newFakeBackend()
	f.loginUser = &models.User{ID: "u-1", Username: "alice"}
	f.loginTok = "tok"

	m := NewManager(f, setupStore(t), bus, nil)
	_, err := m.Login(context.Background(), "a@b.com", []byte("pw"))
	require.NoError(t, err)

	m.Close()
	bus.Publish("too late")

	time.Sleep(50 * time.Millisecond)
	require.NotNil(t, m.State().User)
}

func TestOverlappingLogins_LastCompletionWins(t *testing.T) {
	store := setupStore(t)
	f := newFakeBackend()
	f.loginUser = &models.User{ID: "u-1", Username: "alice"}
	f.loginTok = "tok-a"

	m := NewManager(f, store, nil, nil)
	t.Cleanup(m.Close)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Login(context.Background(), "a@b.com", []byte("pw"))
		}()
	}
	wg.Wait()

	// Both completions commit the same outcome; whichever ran last,
	// the observable state is consistent.
	st := m.State()
	require.Equal(t, f.loginUser, st.User)
	require.False(t, st.Loading)
	require.Empty(t, st.Err)
}

func TestErrorMessage_UnknownErrorPassesThrough(t *testing.T) {
	require.Equal(t, "boom", errorMessage(errors.New("boom")))
}
