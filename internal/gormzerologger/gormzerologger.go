package gormzerologger

import (
	"context"
	"errors"
	"littlefolio/internal/models/cllog"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormZerologger envoie les traces gorm dans zerolog
type GormZerologger struct {
	Logger                    zerolog.Logger
	LogLevel                  logger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

func New(logLevel string) *GormZerologger {
	return &GormZerologger{
		Logger:                    cllog.Component("gorm"),
		LogLevel:                  ParseLevel(logLevel),
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
}

// ParseLevel convertit un niveau texte en niveau gorm
func ParseLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Info
	}
}

func (l *GormZerologger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZerologger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.Logger.Info().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.Logger.Warn().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.Logger.Error().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	event := func(e *zerolog.Event) *zerolog.Event {
		return e.Dur("elapsed_ms", elapsed).Int64("rows", rows).Str("sql", sql)
	}

	switch {
	// les doublons sont rejoués par l'ingestion, inutile de les logger en erreur
	case err != nil && errors.Is(err, gorm.ErrDuplicatedKey) && l.LogLevel >= logger.Warn:
		event(l.Logger.Warn()).Err(err).Msg("duplicate key")

	case err != nil && l.LogLevel >= logger.Error && (!errors.Is(err, gorm.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		event(l.Logger.Error()).Err(err).Msg("database query error")

	case elapsed > l.SlowThreshold && l.SlowThreshold != 0 && l.LogLevel >= logger.Warn:
		event(l.Logger.Warn()).Dur("threshold", l.SlowThreshold).Msg("slow database query")

	case l.LogLevel >= logger.Info:
		event(l.Logger.Debug()).Msg("database query")
	}
}
