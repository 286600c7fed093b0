package clidentity

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	VisitorTTL        = 730 * 24 * time.Hour
	SessionTTL        = 24 * time.Hour
	InactivityTimeout = 30 * time.Minute

	// identifiants retournés quand aucun stockage n'existe (rendu serveur)
	SSRVisitorID = "ssr-temp-id"
	SSRSessionID = "ssr-temp-session"

	tempVisitorPrefix = "temp-"
	tempSessionPrefix = "temp-session-"
)

// Resolver attribue un identifiant de visiteur stable et une session
// glissante de 30 minutes à partir des stockages fournis, dans l'ordre
type Resolver struct {
	stores []Storage
	now    func() time.Time
	logger zerolog.Logger
}

func New(stores ...Storage) *Resolver {
	return &Resolver{
		stores: stores,
		now:    time.Now,
		logger: log.With().Str("component", "identity").Logger(),
	}
}

// WithClock remplace l'horloge, pour les tests
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// VisitorID retourne l'identifiant persistant du visiteur, créé au besoin
func (r *Resolver) VisitorID() string {
	if len(r.stores) == 0 {
		return SSRVisitorID
	}

	id, ok := r.read(KeyVisitor)
	if !ok {
		r.logger.Warn().Msg("aucun stockage disponible, identifiant visiteur temporaire")
		return tempVisitorPrefix + uuid.NewString()
	}
	if id == "" {
		id = uuid.NewString()
	}
	r.write(KeyVisitor, id, VisitorTTL)
	return id
}

// SessionID retourne la session courante. Une nouvelle session est créée
// après 30 minutes d'inactivité; chaque appel repousse l'échéance.
func (r *Resolver) SessionID() string {
	if len(r.stores) == 0 {
		return SSRSessionID
	}

	id, ok := r.read(KeySession)
	if !ok {
		r.logger.Warn().Msg("aucun stockage disponible, session temporaire")
		return tempSessionPrefix + uuid.NewString()
	}
	activity, _ := r.read(KeyActivity)

	now := r.now()
	if id == "" || expired(activity, now) {
		id = uuid.NewString()
	}

	r.write(KeySession, id, SessionTTL)
	r.write(KeyActivity, strconv.FormatInt(now.UnixMilli(), 10), SessionTTL)
	return id
}

// expired est vrai si l'activité est absente, illisible ou trop ancienne
func expired(activity string, now time.Time) bool {
	millis, err := strconv.ParseInt(strings.TrimSpace(activity), 10, 64)
	if err != nil {
		return true
	}
	return now.Sub(time.UnixMilli(millis)) > InactivityTimeout
}

// read retourne la première valeur non vide. ok vaut false si tous les stockages ont échoué.
func (r *Resolver) read(key string) (string, bool) {
	available := false
	for _, store := range r.stores {
		value, err := store.Get(key)
		if err != nil {
			r.logger.Debug().Err(err).Str("key", key).Msg("lecture impossible")
			continue
		}
		available = true
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}
	return "", available
}

func (r *Resolver) write(key, value string, ttl time.Duration) {
	for _, store := range r.stores {
		if err := store.Set(key, value, ttl); err != nil {
			r.logger.Debug().Err(err).Str("key", key).Msg("écriture impossible")
		}
	}
}
