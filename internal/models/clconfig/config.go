package clconfig

import (
	"errors"
	"fmt"
	"log/syslog"
	"os"
	"strconv"
	"strings"

	"github.com/andskur/argon2-hashing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Database        DatabaseConfig  `yaml:"database"`
	StaticPath      string          `yaml:"staticpath"`
	User            UserConfig      `yaml:"user"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	Site            SiteConfig      `yaml:"site"`
	Analytics       AnalyticsConfig `yaml:"analytics"`
}

type SiteConfig struct {
	Name          string       `yaml:"name"`
	SessionSecret string       `yaml:"sessionsecret"`
	Pages         []PageConfig `yaml:"pages"`
}

// PageConfig décrit une page publique servie depuis StaticPath
type PageConfig struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

type AnalyticsConfig struct {
	Enabled       bool        `yaml:"enabled"`
	ApiKey        string      `yaml:"apikey"`
	GeoIP         string      `yaml:"geoip"`
	RetentionDays int         `yaml:"retentiondays"`
	RateLimit     int64       `yaml:"ratelimit"`
	Cron          CronConfig  `yaml:"cron"`
	Redis         RedisConfig `yaml:"redis"`
}

type CronConfig struct {
	Today     string `yaml:"today"`
	Yesterday string `yaml:"yesterday"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
	Metrics string `yaml:"metrics"`
}

type UserConfig struct {
	Login string `yaml:"login"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type DatabaseConfig struct {
	Db   string `yaml:"db"`
	Path string `yaml:"path"`
	Dsn  string `yaml:"dsn"`
}

const (
	DefaultCronToday     = "*/15 * * * *"
	DefaultCronYesterday = "5 0 * * *"
	DefaultRateLimit     = 120
)

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./littlefolio.db",
		},
		Analytics: AnalyticsConfig{
			Enabled:   true,
			RateLimit: DefaultRateLimit,
			Cron: CronConfig{
				Today:     DefaultCronToday,
				Yesterday: DefaultCronYesterday,
			},
		},
		User: UserConfig{
			Login: "admin",
			Pass:  "admin1234",
		},
		StaticPath: "./static",
		Production: false,
		Logger: LoggerConfig{
			Level: "info",
			File: LoggerFileConfig{
				Enable: false,
			},
			Syslog: LoggerSyslogConfig{
				Enable: false,
			},
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
		},
		Site: SiteConfig{
			Name: "Mon Portfolio",
			Pages: []PageConfig{
				{Path: "/", Name: "home", File: "index.html"},
				{Path: "/about", Name: "about", File: "about.html"},
				{Path: "/projects", Name: "projects", File: "projects.html"},
				{Path: "/contact", Name: "contact", File: "contact.html"},
			},
		},
	}

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Listen.Metrics = "127.0.0.1:8090"
		example.Production = true
		example.Database.Path = "/var/lib/littlefolio/sqlite.db"
		example.StaticPath = "/var/lib/littlefolio/static"
		example.Analytics.RetentionDays = 365
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/littlefolio/littlefolio.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/littlefolio/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %v", err)
	}

	return &config, nil
}

// LoadAndConvertConfig charge, valide et complète la configuration.
// Le mot de passe en clair est hashé en argon2 puis réécrit dans le fichier.
func LoadAndConvertConfig(configFile string) (*Config, error) {
	conf, err := LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("erreur chargement config: %v", err)
	}

	if err := ApplyEnv(conf); err != nil {
		return nil, err
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if conf.User.Pass != "" {
		if len(conf.User.Pass) < 8 {
			return nil, fmt.Errorf("le mot de passe doit contenir au moins 8 caractères")
		}

		hash, err := argon2.GenerateFromPassword([]byte(conf.User.Pass), argon2.DefaultParams)
		if err != nil {
			return nil, err
		}
		conf.User.Hash = string(hash)
		conf.User.Pass = ""
		if err := WriteConfigYaml(configFile, conf); err != nil {
			return nil, err
		}
	}

	return conf, nil
}

// Validate vérifie la base et positionne les valeurs par défaut
func (conf *Config) Validate() error {
	switch conf.Database.Db {
	case "":
		return fmt.Errorf("database.db ne peut pas être vide")
	case "sqlite":
		if conf.Database.Path == "" {
			return fmt.Errorf("database.path ne peut pas être vide")
		}
	case "mysql", "postgres":
		if conf.Database.Dsn == "" {
			return fmt.Errorf("database.dsn ne peut pas être vide")
		}
	default:
		return fmt.Errorf("le type de database doit etre sqlite, mysql ou postgres")
	}

	if conf.Listen.Website == "" {
		conf.Listen.Website = "localhost:8080"
	}
	if strings.HasPrefix(conf.Listen.Website, ":") {
		conf.Listen.Website = "localhost" + conf.Listen.Website
	}

	if conf.Analytics.Cron.Today == "" {
		conf.Analytics.Cron.Today = DefaultCronToday
	}
	if conf.Analytics.Cron.Yesterday == "" {
		conf.Analytics.Cron.Yesterday = DefaultCronYesterday
	}
	if conf.Analytics.RateLimit <= 0 {
		conf.Analytics.RateLimit = DefaultRateLimit
	}
	if conf.Analytics.RetentionDays < 0 {
		return fmt.Errorf("analytics.retentiondays ne peut pas être négatif")
	}

	for _, page := range conf.Site.Pages {
		if !strings.HasPrefix(page.Path, "/") {
			return fmt.Errorf("le chemin de la page %q doit commencer par /", page.Name)
		}
		if strings.HasPrefix(page.Path, "/admin") || strings.HasPrefix(page.Path, "/analytics") {
			return fmt.Errorf("le chemin %s est réservé", page.Path)
		}
	}

	return nil
}

// ApplyEnv charge un éventuel fichier .env puis applique les surcharges d'environnement
func ApplyEnv(conf *Config, files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("erreur lecture .env: %v", err)
	}

	if key, ok := os.LookupEnv("ANALYTICS_API_KEY"); ok {
		conf.Analytics.ApiKey = key
	}
	if os.Getenv("NODE_ENV") == "production" {
		conf.Production = true
	}
	if value, ok := os.LookupEnv("PRODUCTION"); ok {
		production, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("PRODUCTION invalide: %v", err)
		}
		conf.Production = production
	}
	return nil
}

func CreateExample(shouldCreateExample bool, configFile string) {
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "littlefolio.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %v", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	fmt.Println("⚠️  user.pass sera automatiquement hash en argon2 dans user.hash au premier lancement")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Littlefolio version %s", version)

	logPrintf("Mode Production %v", config.Production)
	logPrintf("Administrateur login %s", config.User.Login)

	logPrintf("Database")
	logPrintf("  • Type %s", config.Database.Db)
	if config.Database.Db == "sqlite" {
		logPrintf("  • Path %s", config.Database.Path)
	} else {
		logPrintf("  • DSN %s", maskDsn(config.Database.Dsn))
	}

	if config.Analytics.Enabled {
		logPrintf("Analytics activé")
		if config.Analytics.ApiKey != "" {
			logPrintf("  • Clé API configurée")
		} else {
			logPrintf("  • Pas de clé API, lecture ouverte")
		}
		logPrintf("  • Cron du jour %s", config.Analytics.Cron.Today)
		logPrintf("  • Cron de la veille %s", config.Analytics.Cron.Yesterday)
		if config.Analytics.RetentionDays > 0 {
			logPrintf("  • Rétention %d jours", config.Analytics.RetentionDays)
		}
		if config.Analytics.Redis.Addr != "" {
			logPrintf("  • Redis addr %s", config.Analytics.Redis.Addr)
		}
		if config.Analytics.GeoIP != "" {
			logPrintf("  • GeoIP %s", config.Analytics.GeoIP)
		}
	} else {
		logPrintf("Analytics désactivé")
	}

	// Logger
	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	} else {
		logPrintf("  Log en fichier désactivé")
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	} else {
		logPrintf("  Log en syslog désactivé")
	}

	logPrintf("Pages du site")
	for _, page := range config.Site.Pages {
		logPrintf("  • %s (%s) -> %s", page.Path, page.Name, page.File)
	}
}

// masque le mot de passe d'un dsn user:pass@...
func maskDsn(dsn string) string {
	start := 0
	if idx := strings.Index(dsn, "://"); idx != -1 {
		start = idx + 3
	}
	at := strings.LastIndex(dsn, "@")
	colon := strings.Index(dsn[start:], ":")
	if at == -1 || colon == -1 || start+colon > at {
		return dsn
	}
	return dsn[:start+colon+1] + "***" + dsn[at:]
}

// Info logue avec printf
func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
