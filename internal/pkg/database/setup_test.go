package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{User: "cf", Password: "s3cret", Host: "db", Port: "3307", Name: "collections"}
	assert.Equal(t, "cf:s3cret@tcp(db:3307)/collections?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "mysql.internal")
	t.Setenv("DB_CONNECT_RETRY_SECONDS", "2")

	cfg := LoadConfig()
	assert.Equal(t, "mysql.internal", cfg.Host)
	assert.Equal(t, "3306", cfg.Port)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}

func TestConfigMigrateURL(t *testing.T) {
	cfg := Config{User: "cf", Password: "pw", Host: "db", Port: "3306", Name: "collectfox"}
	assert.Equal(t, "mysql://cf:pw@tcp(db:3306)/collectfox?multiStatements=true", cfg.MigrateURL())
}
