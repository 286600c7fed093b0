package clidentity

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestResolver(stores ...Storage) (*Resolver, *time.Time) {
	now := testNow
	return New(stores...).WithClock(func() time.Time { return now }), &now
}

func TestVisitorIDIsStable(t *testing.T) {
	store := NewMemoryStorage()
	r, _ := newTestResolver(store)

	first := r.VisitorID()
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	assert.Equal(t, first, r.VisitorID())

	stored, err := store.Get(KeyVisitor)
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestVisitorIDReadsSecondaryStore(t *testing.T) {
	primary := NewMemoryStorage()
	secondary := NewMemoryStorage()
	require.NoError(t, secondary.Set(KeyVisitor, "existing", 0))

	r, _ := newTestResolver(primary, secondary)
	assert.Equal(t, "existing", r.VisitorID())

	// recopié dans le stockage principal
	value, err := primary.Get(KeyVisitor)
	require.NoError(t, err)
	assert.Equal(t, "existing", value)
}

func TestVisitorIDSurvivesDisabledStore(t *testing.T) {
	disabled := NewMemoryStorage()
	disabled.SetDisabled(true)
	working := NewMemoryStorage()

	r, _ := newTestResolver(disabled, working)
	id := r.VisitorID()
	assert.False(t, strings.HasPrefix(id, tempVisitorPrefix))
	assert.Equal(t, id, r.VisitorID())
}

func TestSessionIDSlidingWindow(t *testing.T) {
	store := NewMemoryStorage()
	r, now := newTestResolver(store)
	store.SetClock(func() time.Time { return *now })

	first := r.SessionID()
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	// chaque appel repousse l'échéance
	for i := 0; i < 4; i++ {
		*now = now.Add(20 * time.Minute)
		assert.Equal(t, first, r.SessionID())
	}

	activity, err := store.Get(KeyActivity)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), activity)

	*now = now.Add(31 * time.Minute)
	second := r.SessionID()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, r.SessionID())
}

func TestSessionIDExactlyThirtyMinutes(t *testing.T) {
	store := NewMemoryStorage()
	r, now := newTestResolver(store)
	store.SetClock(func() time.Time { return *now })

	first := r.SessionID()
	*now = now.Add(InactivityTimeout)
	assert.Equal(t, first, r.SessionID())
}

func TestSessionIDInvalidActivity(t *testing.T) {
	store := NewMemoryStorage()
	require.NoError(t, store.Set(KeySession, "s1", 0))
	require.NoError(t, store.Set(KeyActivity, "not-a-number", 0))

	r, _ := newTestResolver(store)
	assert.NotEqual(t, "s1", r.SessionID())
}

func TestSessionIDMissingActivity(t *testing.T) {
	store := NewMemoryStorage()
	require.NoError(t, store.Set(KeySession, "s1", 0))

	r, _ := newTestResolver(store)
	assert.NotEqual(t, "s1", r.SessionID())
}

func TestSessionIDRecentActivity(t *testing.T) {
	store := NewMemoryStorage()
	require.NoError(t, store.Set(KeySession, "s1", 0))
	require.NoError(t, store.Set(KeyActivity, strconv.FormatInt(testNow.Add(-5*time.Minute).UnixMilli(), 10), 0))

	r, _ := newTestResolver(store)
	assert.Equal(t, "s1", r.SessionID())
}

func TestResolverWithoutStores(t *testing.T) {
	r, _ := newTestResolver()
	assert.Equal(t, SSRVisitorID, r.VisitorID())
	assert.Equal(t, SSRSessionID, r.SessionID())
}

func TestResolverAllStoresDisabled(t *testing.T) {
	a := NewMemoryStorage()
	a.SetDisabled(true)
	b := NewMemoryStorage()
	b.SetDisabled(true)
	r, _ := newTestResolver(a, b)

	v1 := r.VisitorID()
	v2 := r.VisitorID()
	assert.True(t, strings.HasPrefix(v1, "temp-"))
	assert.NotEqual(t, v1, v2)

	s1 := r.SessionID()
	assert.True(t, strings.HasPrefix(s1, "temp-session-"))
	assert.NotEqual(t, s1, r.SessionID())
}

func TestMemoryStorageExpiry(t *testing.T) {
	now := testNow
	store := NewMemoryStorage()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set("k", "v", time.Hour))
	value, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	now = now.Add(time.Hour)
	value, err = store.Get("k")
	require.NoError(t, err)
	assert.Empty(t, value)

	store.SetDisabled(true)
	_, err = store.Get("k")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.ErrorIs(t, store.Set("k", "v", 0), ErrStorageDisabled)
}

func TestCookieStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: "jb_visitor", Value: "from-cookie"})

	store := NewCookieStorage(c, true)
	value, err := store.Get(KeyVisitor)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", value)

	value, err = store.Get(KeySession)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(KeySession, "s1", SessionTTL))
	value, err = store.Get(KeySession)
	require.NoError(t, err)
	assert.Equal(t, "s1", value)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "jb_session=s1")
	assert.Contains(t, cookie, "Max-Age=86400")
	assert.Contains(t, cookie, "Secure")
	assert.NotContains(t, cookie, "HttpOnly")
}

func TestCookieStorageDisabled(t *testing.T) {
	store := NewCookieStorage(nil, false)
	_, err := store.Get(KeyVisitor)
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestHeaderStorage(t *testing.T) {
	header := http.Header{}
	header.Set("X-Visitor-Id", "from-header")

	store := NewHeaderStorage(header)
	value, err := store.Get(KeyVisitor)
	require.NoError(t, err)
	assert.Equal(t, "from-header", value)

	value, err = store.Get(KeyActivity)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(KeyVisitor, "ignored", VisitorTTL))
	value, _ = store.Get(KeyVisitor)
	assert.Equal(t, "from-header", value)
}

func TestResolverCookieThenHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Visitor-Id", "local-id")

	r, _ := newTestResolver(NewCookieStorage(c, false), NewHeaderStorage(c.Request.Header))
	assert.Equal(t, "local-id", r.VisitorID())
	assert.Contains(t, w.Header().Values("Set-Cookie")[0], "jb_visitor=local-id")
}
