package clcaptchas

import (
	"errors"
	"fmt"
	"littlefolio/internal/clredis"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrCaptchaMissing   = errors.New("CAPTCHA manquant")
	ErrCaptchaIncorrect = errors.New("CAPTCHA incorrect")
)

type Challenge struct {
	ID    string `json:"captcha_id"`
	Image string `json:"image"`
	// renseignée hors production seulement
	Answer string `json:"answer"`
}

type Captchas struct {
	store      base64Captcha.Store
	driver     base64Captcha.Driver
	production bool
}

// New utilise redis quand un client est fourni, la mémoire sinon
func New(client *redis.Client, production bool) *Captchas {
	var store base64Captcha.Store
	if client != nil {
		store = clredis.NewCaptchaStore(client)
	} else {
		store = base64Captcha.DefaultMemStore
	}

	driver := base64Captcha.NewDriverMath(
		80,  // hauteur
		240, // largeur
		6,   // nombre d'opérations à afficher
		base64Captcha.OptionShowHollowLine,
		nil, // couleur de fond
		nil, // police
		nil, // couleurs
	)

	return &Captchas{
		store:      store,
		driver:     driver,
		production: production,
	}
}

func (cap *Captchas) Generate() (*Challenge, error) {
	captcha := base64Captcha.NewCaptcha(cap.driver, cap.store)

	id, b64s, answer, err := captcha.Generate()
	if err != nil {
		return nil, fmt.Errorf("erreur lors de la génération du CAPTCHA: %w", err)
	}

	challenge := &Challenge{ID: id, Image: b64s}
	if !cap.production {
		log.Debug().Str("captcha_id", id).Str("answer", answer).Msg("CAPTCHA généré")
		challenge.Answer = answer
	}
	return challenge, nil
}

func (cap *Captchas) Verify(captchaID string, captchaAnswer string) error {
	captchaID = strings.TrimSpace(captchaID)
	captchaAnswer = strings.TrimSpace(captchaAnswer)

	if captchaID == "" || captchaAnswer == "" {
		return ErrCaptchaMissing
	}

	if !cap.store.Verify(captchaID, captchaAnswer, true) {
		return ErrCaptchaIncorrect
	}
	return nil
}

func (cap *Captchas) Handler(c *gin.Context) {
	challenge, err := cap.Generate()
	if err != nil {
		log.Error().Err(err).Msg("génération captcha")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, challenge)
}
