package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	// DebugMode indicates service mode is debug.
	DebugMode = "debug"
	// TestMode indicates service mode is test.
	TestMode = "test"
	// ReleaseMode indicates service mode is release.
	ReleaseMode = "release"
)

type Config struct {
	ServiceName string
	HTTPPort    string

	Environment string // debug, test, release
	Version     string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSchema   string

	PostgresMaxConnections int32

	// Only expose the named tables when non-empty.
	IncludeTables []string
	// Always hidden, even when listed in IncludeTables.
	ExcludeTables []string

	AdminUser      string
	AdminPassword  string
	ViewerUser     string
	ViewerPassword string
}

// Load ...
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found")
	}

	config := Config{}

	config.ServiceName = cast.ToString(getOrReturnDefaultValue("SERVICE_NAME", "crudo"))
	config.HTTPPort = cast.ToString(getOrReturnDefaultValue("HTTP_PORT", ":8080"))

	config.Environment = cast.ToString(getOrReturnDefaultValue("ENVIRONMENT", DebugMode))
	config.Version = cast.ToString(getOrReturnDefaultValue("VERSION", "1.0"))

	config.PostgresHost = cast.ToString(getOrReturnDefaultValue("POSTGRES_HOST", "localhost"))
	config.PostgresPort = cast.ToInt(getOrReturnDefaultValue("POSTGRES_PORT", 5432))
	config.PostgresUser = cast.ToString(getOrReturnDefaultValue("POSTGRES_USER", ""))
	config.PostgresPassword = cast.ToString(getOrReturnDefaultValue("POSTGRES_PASSWORD", ""))
	config.PostgresDatabase = cast.ToString(getOrReturnDefaultValue("POSTGRES_DATABASE", ""))
	config.PostgresSchema = cast.ToString(getOrReturnDefaultValue("POSTGRES_SCHEMA", "public"))

	config.PostgresMaxConnections = cast.ToInt32(getOrReturnDefaultValue("POSTGRES_MAX_CONNECTIONS", 10))

	config.IncludeTables = splitTables(cast.ToString(getOrReturnDefaultValue("CRUDO_INCLUDE_TABLES", "")))
	config.ExcludeTables = splitTables(cast.ToString(getOrReturnDefaultValue("CRUDO_EXCLUDE_TABLES", "alembic_version,schema_migrations")))

	config.AdminUser = cast.ToString(getOrReturnDefaultValue("CRUDO_ADMIN_USER", "admin"))
	config.AdminPassword = cast.ToString(getOrReturnDefaultValue("CRUDO_ADMIN_PASS", "admin"))
	config.ViewerUser = cast.ToString(getOrReturnDefaultValue("CRUDO_VIEWER_USER", "viewer"))
	config.ViewerPassword = cast.ToString(getOrReturnDefaultValue("CRUDO_VIEWER_PASS", "viewer"))

	return config
}

func getOrReturnDefaultValue(key string, defaultValue any) any {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return defaultValue
}

func splitTables(raw string) []string {
	if raw == "" {
		return nil
	}

	tables := []string{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tables = append(tables, t)
		}
	}

	return tables
}
