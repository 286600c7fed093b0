package clredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	pingTimeout       = 3 * time.Second
	captchaExpiration = 5 * time.Minute
	captchaPrefix     = "captcha:"
)

// NewClient ouvre une connexion redis et la vérifie. Une adresse vide
// retourne un client nil: les fonctions qui en dépendent se replient sur la mémoire ou la base.
func NewClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	if addr == "" {
		log.Debug().Msg("redis non configuré")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connexion redis %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("redis connecté")
	return client, nil
}

// CaptchaStore conserve les réponses des captchas dans redis
type CaptchaStore struct {
	client     *redis.Client
	expiration time.Duration
}

func NewCaptchaStore(client *redis.Client) *CaptchaStore {
	return &CaptchaStore{
		client:     client,
		expiration: captchaExpiration,
	}
}

func (r *CaptchaStore) Set(id string, value string) error {
	return r.client.Set(context.Background(), captchaPrefix+id, value, r.expiration).Err()
}

func (r *CaptchaStore) Get(id string, clear bool) string {
	ctx := context.Background()
	key := captchaPrefix + id

	var (
		val string
		err error
	)
	if clear {
		val, err = r.client.GetDel(ctx, key).Result()
	} else {
		val, err = r.client.Get(ctx, key).Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Msg("lecture captcha redis impossible")
	}
	return val
}

// Verify consomme le captcha quand clear est vrai, qu'il soit juste ou non
func (r *CaptchaStore) Verify(id, answer string, clear bool) bool {
	v := r.Get(id, clear)
	return v != "" && v == answer
}
