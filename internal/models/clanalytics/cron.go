package clanalytics

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	cleanupSchedule = "0 2 * * *"
	jobTimeout      = 5 * time.Minute
)

type ScheduleConfig struct {
	Today     string
	Yesterday string
}

// StartScheduler lance les recalculs planifiés et, si une rétention est
// configurée, le nettoyage quotidien des données brutes
func (as *AnalyticsService) StartScheduler(cfg ScheduleConfig) error {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cronLogger{as})))

	if _, err := c.AddFunc(cfg.Today, func() {
		as.runJob("today", func(ctx context.Context) error {
			_, err := as.rollup(ctx, as.Now(), triggerCron, true)
			return err
		})
	}); err != nil {
		return fmt.Errorf("cron today %q: %w", cfg.Today, err)
	}

	// la veille reçoit encore des durées après minuit
	if _, err := c.AddFunc(cfg.Yesterday, func() {
		as.runJob("yesterday", func(ctx context.Context) error {
			_, err := as.rollup(ctx, as.Now().AddDate(0, 0, -1), triggerCron, true)
			return err
		})
	}); err != nil {
		return fmt.Errorf("cron yesterday %q: %w", cfg.Yesterday, err)
	}

	if as.retentionDays > 0 {
		if _, err := c.AddFunc(cleanupSchedule, func() {
			as.runJob("cleanup", as.CleanupOldData)
		}); err != nil {
			return err
		}
	}

	c.Start()
	as.cron = c
	as.logger.Info().
		Str("today", cfg.Today).
		Str("yesterday", cfg.Yesterday).
		Int("retention_days", as.retentionDays).
		Msg("planification analytics démarrée")
	return nil
}

// Stop arrête le planificateur et attend la fin des tâches en cours
func (as *AnalyticsService) Stop() {
	if as.cron == nil {
		return
	}
	<-as.cron.Stop().Done()
	as.cron = nil
}

func (as *AnalyticsService) runJob(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		as.logger.Error().Err(err).Str("job", name).Msg("tâche planifiée en échec")
		return
	}
	as.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("tâche planifiée terminée")
}

// CleanupOldData supprime les données brutes plus anciennes que la rétention.
// Les résumés journaliers sont conservés.
func (as *AnalyticsService) CleanupOldData(ctx context.Context) error {
	if as.retentionDays <= 0 {
		return nil
	}
	limit := StartOfDay(as.Now()).AddDate(0, 0, -as.retentionDays)

	return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name   string
			model  any
			column string
		}{
			{"events", &AnalyticsEvent{}, "timestamp"},
			{"page views", &PageView{}, "visited_at"},
			{"sessions", &Session{}, "end_time"},
			{"visitors", &Visitor{}, "last_seen"},
		}
		for _, step := range steps {
			result := tx.Where(step.column+" < ?", limit).Delete(step.model)
			if result.Error != nil {
				return fmt.Errorf("nettoyage %s: %w", step.name, result.Error)
			}
			as.logger.Info().Int64("deleted", result.RowsAffected).Msgf("nettoyage %s", step.name)
		}
		return nil
	})
}

type ResetResult struct {
	Summaries int64 `json:"dailySummariesDeleted"`
	PageViews int64 `json:"pageViewsDeleted"`
	Events    int64 `json:"eventsDeleted"`
	Sessions  int64 `json:"sessionsDeleted"`
	Visitors  int64 `json:"visitorsDeleted"`
}

// Reset efface toutes les données analytics dans une seule transaction
func (as *AnalyticsService) Reset(ctx context.Context) (*ResetResult, error) {
	result := &ResetResult{}
	tx := as.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	steps := []struct {
		model any
		dest  *int64
	}{
		{&DailySummary{}, &result.Summaries},
		{&AnalyticsEvent{}, &result.Events},
		{&PageView{}, &result.PageViews},
		{&Session{}, &result.Sessions},
		{&Visitor{}, &result.Visitors},
	}
	for _, step := range steps {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(step.model)
		if res.Error != nil {
			tx.Rollback()
			return nil, fmt.Errorf("remise à zéro: %w", res.Error)
		}
		*step.dest = res.RowsAffected
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	as.logger.Warn().Interface("result", result).Msg("données analytics remises à zéro")
	return result, nil
}

// cronLogger relaie les messages de robfig/cron vers zerolog
type cronLogger struct {
	as *AnalyticsService
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.as.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.as.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
