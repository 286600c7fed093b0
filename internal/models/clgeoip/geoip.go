package clgeoip

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang/v2"
	"github.com/rs/zerolog/log"
)

// Lookup résout le pays d'une adresse IP à partir d'une base GeoLite2-Country.
// Un Lookup sans base retourne toujours "".
type Lookup struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	path   string
}

// Open charge la base. Un chemin vide ou un fichier absent désactive la géolocalisation
// sans erreur; une base illisible est une erreur.
func Open(path string) (*Lookup, error) {
	l := &Lookup{path: path}
	if path == "" {
		log.Debug().Msg("GeoIP non configuré")
		return l, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("base GeoIP introuvable, géolocalisation désactivée")
		return l, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouverture base GeoIP %s: %w", path, err)
	}
	l.reader = reader
	log.Info().Str("path", path).Msg("base GeoIP chargée")
	return l, nil
}

// Enabled indique si une base est chargée
func (l *Lookup) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reader != nil
}

// Country retourne le code ISO du pays, "" si inconnu
func (l *Lookup) Country(ip string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return ""
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || addr.IsLoopback() || addr.IsPrivate() {
		return ""
	}

	record, err := l.reader.Country(addr.Unmap())
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("recherche GeoIP en échec")
		return ""
	}
	return record.Country.ISOCode
}

// Reload relit la base depuis le disque, après une mise à jour du fichier
func (l *Lookup) Reload() error {
	fresh, err := Open(l.path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	old := l.reader
	l.reader = fresh.reader
	l.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

func (l *Lookup) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
