package db

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// PostgresConfig is read from POSTGRES_* env vars. DSN, when set, wins over
// the individual fields.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func PostgresConfigFromEnv() PostgresConfig {
	return PostgresConfig{
		DSN:             envutil.String("POSTGRES_DSN", ""),
		Host:            envutil.String("POSTGRES_HOST", "localhost"),
		Port:            envutil.String("POSTGRES_PORT", "5432"),
		User:            envutil.String("POSTGRES_USER", "postgres"),
		Password:        envutil.String("POSTGRES_PASSWORD", ""),
		Name:            envutil.String("POSTGRES_NAME", "undercurrent"),
		SSLMode:         envutil.String("POSTGRES_SSLMODE", "disable"),
		MaxOpenConns:    envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    envutil.Int("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envutil.Seconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 30*time.Minute),
	}
}

// ConnString builds a postgres URL, escaping credentials.
func (cfg PostgresConfig) ConnString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// NewPostgres connects, sizes the pool and pings once so a bad DSN fails at
// boot instead of on the first request.
func NewPostgres(logg *logger.Logger, cfg PostgresConfig) (*gorm.DB, error) {
	serviceLog := logg.With("service", "Postgres")

	db, err := gorm.Open(postgres.Open(cfg.ConnString()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping Postgres: %w", err)
	}

	serviceLog.Info("Connected to Postgres", "host", cfg.Host, "name", cfg.Name, "max_open_conns", cfg.MaxOpenConns)
	return db, nil
}

func newGormLogger() gormLogger.Interface {
	level := gormLogger.Warn
	if envutil.Bool("GORM_LOG_SQL", false) {
		level = gormLogger.Info
	}
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
