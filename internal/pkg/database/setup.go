package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

// DB is the process-wide connection opened by SetupDatabase.
var DB *gorm.DB

type Config struct {
	User        string
	Password    string
	Host        string
	Port        string
	Name        string
	MaxRetries  int
	RetryDelay  time.Duration
	AutoMigrate bool
}

func LoadConfig() Config {
	return Config{
		User:        env.GetEnv("DB_USER", "collectfox"),
		Password:    env.GetEnv("DB_PASSWORD", ""),
		Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:        env.GetEnv("DB_PORT", "3306"),
		Name:        env.GetEnv("DB_NAME", "collectfox"),
		MaxRetries:  env.GetEnvInt("DB_CONNECT_RETRIES", 5),
		RetryDelay:  time.Duration(env.GetEnvInt("DB_CONNECT_RETRY_SECONDS", 5)) * time.Second,
		AutoMigrate: env.GetEnvBool("DB_AUTO_MIGRATE", env.IsDev()),
	}
}

// DSN uses UTC so due dates compare the same way on every host.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// MigrateURL is the golang-migrate connection string for the same database.
func (c Config) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// SetupDatabase connects with retries and stores the connection in DB.
func SetupDatabase() (*gorm.DB, error) {
	db, err := Open(LoadConfig())
	if err != nil {
		return nil, err
	}
	DB = db
	return db, nil
}

func Open(cfg Config) (*gorm.DB, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if env.IsDev() {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			if cfg.AutoMigrate {
				if err := db.AutoMigrate(models.All()...); err != nil {
					return nil, fmt.Errorf("auto migrate: %w", err)
				}
			}
			log.Infof("[Database] Connected to %s@%s:%s/%s", cfg.User, cfg.Host, cfg.Port, cfg.Name)
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, cfg.MaxRetries, err)
		if i < cfg.MaxRetries-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("connect database: %w", err)
}

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}
