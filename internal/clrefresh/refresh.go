package clrefresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task est une tâche périodique; elle reçoit le contexte du rafraîchisseur
type Task func(ctx context.Context) error

// Run exécute task immédiatement puis à chaque tick, jusqu'à l'annulation de ctx.
// Un tick qui tombe pendant une exécution est ignoré.
func Run(ctx context.Context, name string, interval time.Duration, task Task) {
	r := &runner{name: name, task: task}

	var wg sync.WaitGroup
	defer wg.Wait()

	r.launch(ctx, &wg)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("task", name).Msg("rafraîchissement arrêté")
			return
		case <-ticker.C:
			r.launch(ctx, &wg)
		}
	}
}

type runner struct {
	name    string
	task    Task
	mu      sync.Mutex
	running bool
}

func (r *runner) launch(ctx context.Context, wg *sync.WaitGroup) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Debug().Str("task", r.name).Msg("exécution précédente en cours, tick ignoré")
		return
	}
	r.running = true
	r.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Str("task", r.name).Msg("panic dans une tâche périodique")
			}
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()

		if ctx.Err() != nil {
			return
		}
		if err := r.task(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("task", r.name).Msg("tâche périodique en échec")
		}
	}()
}
