package handlers_site

import (
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"littlefolio/internal/clmiddleware"
	"littlefolio/internal/models/clconfig"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

//go:embed tracker.js
var trackerSource []byte

const scriptCacheControl = "public, max-age=3600"

type SiteHandler struct {
	staticPath string
	script     []byte
	etag       string
}

// NewSiteHandler minifie une fois le script de suivi embarqué
func NewSiteHandler(staticPath string) *SiteHandler {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)

	script, err := m.Bytes("application/javascript", trackerSource)
	if err != nil {
		log.Warn().Err(err).Msg("minification du script de suivi, version source servie")
		script = trackerSource
	}

	return &SiteHandler{
		staticPath: staticPath,
		script:     script,
		etag:       generateETag(script),
	}
}

// Register déclare les pages configurées, chacune suivie côté serveur
func (sh *SiteHandler) Register(r gin.IRoutes, tracker *clmiddleware.PageTracker, pages []clconfig.PageConfig) {
	for _, page := range pages {
		if tracker != nil {
			r.GET(page.Path, tracker.Track(page.Name), sh.Page(page))
		} else {
			r.GET(page.Path, sh.Page(page))
		}
	}
	r.GET("/files/js/tracker.js", sh.Tracker)
}

// Page sert le fichier html de la page depuis le dossier statique
func (sh *SiteHandler) Page(page clconfig.PageConfig) gin.HandlerFunc {
	file := filepath.Join(sh.staticPath, filepath.Clean("/"+page.File))
	return func(c *gin.Context) {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("file", file).Str("path", page.Path).Msg("fichier de page absent")
			c.JSON(http.StatusNotFound, gin.H{"error": "Page non trouvée"})
			return
		}
		c.File(file)
	}
}

// Tracker GET /files/js/tracker.js
func (sh *SiteHandler) Tracker(c *gin.Context) {
	if c.GetHeader("If-None-Match") == sh.etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("Cache-Control", scriptCacheControl)
	c.Header("ETag", sh.etag)
	c.Data(http.StatusOK, "application/javascript", sh.script)
}

// Fonction helper pour générer un ETag
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf(`"%x"`, hash[:16])
}
