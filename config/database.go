package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// UseDB replaces the global connection. Used by ledgerctl and tests that
// open their own dialector.
func UseDB(conn *gorm.DB) {
	db = conn
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// PoolSettings tunes database/sql. Zero or negative values leave the driver default.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Env overrides:
// - DB_MAX_OPEN_CONNS (default 50)
// - DB_MAX_IDLE_CONNS (default 25)
// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
// - DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
func poolSettingsFromEnv() PoolSettings {
	return PoolSettings{
		MaxOpen:     intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdle:     intFromEnv("DB_MAX_IDLE_CONNS", 25),
		MaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		MaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
	}
}

// MySQLDSN builds the ledger database DSN from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME.
// A DB_HOST under /cloudsql/ is dialled as the Cloud SQL Auth Proxy unix socket.
func MySQLDSN() string {
	host := os.Getenv("DB_HOST")
	address := "tcp(" + host + ":" + os.Getenv("DB_PORT") + ")"
	if strings.HasPrefix(host, "/cloudsql/") {
		address = "unix(" + host + ")"
	}
	return fmt.Sprintf("%s:%s@%s/%s?multiStatements=true&parseTime=true",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), address, os.Getenv("DB_NAME"))
}

// ConnectDatabaseWithRetry blocks until MySQL answers and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	dsn := MySQLDSN()
	_ = retryUntil(context.Background(), "database", func() error {
		conn, err := OpenDatabase(mysql.Open(dsn))
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
}

// OpenDatabase opens a gorm connection with the service's plugins and pool tuning.
// The dialector is a parameter so tests can open SQLite with the same setup.
func OpenDatabase(dialector gorm.Dialector) (*gorm.DB, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
		pool := poolSettingsFromEnv()
		if pool.MaxOpen > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpen)
		}
		if pool.MaxIdle >= 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdle)
		}
		if pool.MaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
		}
		if pool.MaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
		}
	}

	for _, plugin := range []gorm.Plugin{otelgorm.NewPlugin(), NewTenantGuardPlugin()} {
		if err := conn.Use(plugin); err != nil {
			log.Printf("db connected but failed to install %s plugin: %v", plugin.Name(), err)
		}
	}
	return conn, nil
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// gormLogger reports SQL errors and statements slower than DB_SLOW_QUERY_MS (default 1000).
func gormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Duration(intFromEnv("DB_SLOW_QUERY_MS", 1000)) * time.Millisecond,
			IgnoreRecordNotFoundError: true,
		},
	)
}
