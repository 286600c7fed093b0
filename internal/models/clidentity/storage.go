package clidentity

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrStorageDisabled signale un stockage indisponible (cookies refusés, navigation privée...)
var ErrStorageDisabled = errors.New("stockage désactivé")

// clés logiques, identiques aux clés localStorage du script client
const (
	KeyVisitor  = "jb_visitor_id"
	KeySession  = "jb_session_id"
	KeyActivity = "jb_last_activity"
)

// Storage est un magasin clé/valeur persistant côté client.
// Get retourne "" sans erreur quand la clé est absente.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string, ttl time.Duration) error
}

var cookieNames = map[string]string{
	KeyVisitor:  "jb_visitor",
	KeySession:  "jb_session",
	KeyActivity: "jb_activity",
}

// CookieStorage lit et écrit les cookies de la requête gin en cours
type CookieStorage struct {
	c       *gin.Context
	secure  bool
	written map[string]string
}

func NewCookieStorage(c *gin.Context, secure bool) *CookieStorage {
	return &CookieStorage{c: c, secure: secure, written: map[string]string{}}
}

func (s *CookieStorage) Get(key string) (string, error) {
	if s.c == nil {
		return "", ErrStorageDisabled
	}
	// une valeur écrite pendant la requête n'est pas encore dans les cookies reçus
	if value, ok := s.written[key]; ok {
		return value, nil
	}
	value, err := s.c.Cookie(cookieName(key))
	if errors.Is(err, http.ErrNoCookie) {
		return "", nil
	}
	return value, err
}

func (s *CookieStorage) Set(key, value string, ttl time.Duration) error {
	if s.c == nil {
		return ErrStorageDisabled
	}
	s.c.SetSameSite(http.SameSiteLaxMode)
	// lisible par le script client, donc pas httpOnly
	s.c.SetCookie(cookieName(key), value, int(ttl.Seconds()), "/", "", s.secure, false)
	s.written[key] = value
	return nil
}

func cookieName(key string) string {
	if name, ok := cookieNames[key]; ok {
		return name
	}
	return key
}

var headerNames = map[string]string{
	KeyVisitor: "X-Visitor-Id",
	KeySession: "X-Session-Id",
}

// HeaderStorage expose en lecture seule les valeurs localStorage
// que le script client recopie dans les en-têtes
type HeaderStorage struct {
	header http.Header
}

func NewHeaderStorage(header http.Header) *HeaderStorage {
	return &HeaderStorage{header: header}
}

func (s *HeaderStorage) Get(key string) (string, error) {
	if s.header == nil {
		return "", ErrStorageDisabled
	}
	name, ok := headerNames[key]
	if !ok {
		return "", nil
	}
	return s.header.Get(name), nil
}

func (s *HeaderStorage) Set(string, string, time.Duration) error {
	return nil
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryStorage est un magasin éphémère avec expiration
type MemoryStorage struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	disabled bool
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: map[string]memoryEntry{}, now: time.Now}
}

// SetClock remplace l'horloge utilisée pour les expirations
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetDisabled simule un stockage refusé par le navigateur
func (s *MemoryStorage) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
}

func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return "", ErrStorageDisabled
	}
	entry, ok := s.entries[key]
	if !ok {
		return "", nil
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.entries, key)
		return "", nil
	}
	return entry.value, nil
}

func (s *MemoryStorage) Set(key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return ErrStorageDisabled
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}
