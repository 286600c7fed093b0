package cldatabase

import (
	"fmt"
	"littlefolio/internal/gormzerologger"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clconfig"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open ouvre la base configurée et migre les tables analytics
func Open(cfg clconfig.DatabaseConfig, production bool, logLevel string) (*gorm.DB, error) {
	level := "warn"
	if logLevel == "debug" || !production {
		level = "info"
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormzerologger.New(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("erreur connexion base de données: %w", err)
	}

	if cfg.Db == "sqlite" {
		// sqlite n'accepte qu'un écrivain à la fois
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func dialectorFor(cfg clconfig.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Db {
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	case "mysql":
		return mysql.Open(cfg.Dsn), nil
	case "postgres":
		return postgres.Open(cfg.Dsn), nil
	default:
		return nil, fmt.Errorf("le type de database doit etre sqlite, mysql ou postgres")
	}
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&clanalytics.Visitor{},
		&clanalytics.Session{},
		&clanalytics.PageView{},
		&clanalytics.AnalyticsEvent{},
		&clanalytics.DailySummary{},
	)
	if err != nil {
		return fmt.Errorf("erreur migration: %w", err)
	}
	return nil
}
