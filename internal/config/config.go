package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the settings shared by every command. Flags fall back to
// environment variables, which may come from a .env file.
type Config struct {
	DBDriver    string `name:"db-driver" env:"WATERSPOT_DB_DRIVER" default:"sqlite" enum:"sqlite,postgres" help:"Storage backend (sqlite|postgres)." validate:"oneof=sqlite postgres"`
	DBPath      string `name:"db-path" env:"WATERSPOT_DB_PATH" default:"data/waterspot.db" help:"SQLite database file." validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"PostgreSQL connection string." validate:"required_if=DBDriver postgres"`
	PGMaxConns  int32  `name:"pg-max-conns" env:"WATERSPOT_PG_MAX_CONNS" default:"10" help:"PostgreSQL pool size." validate:"min=1,max=200"`

	Port        int      `name:"port" env:"PORT" default:"8080" help:"HTTP listen port." validate:"min=1,max=65535"`
	CORSOrigins []string `name:"cors-origins" env:"WATERSPOT_CORS_ORIGINS" default:"*" help:"Allowed CORS origins." validate:"min=1,dive,required"`
	UploadRate  float64  `name:"upload-rate" env:"WATERSPOT_UPLOAD_RATE" default:"5" help:"Upload requests per second before 429 (0 disables)." validate:"gte=0"`
	MaxUpload   int64    `name:"max-upload-bytes" env:"WATERSPOT_MAX_UPLOAD_BYTES" default:"33554432" help:"Largest accepted upload body." validate:"min=1024"`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" help:"debug|info|warn|error." validate:"oneof=debug info warn error"`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"json" enum:"json,console" help:"Log encoding." validate:"oneof=json console"`

	BatchSize int `name:"batch-size" env:"WATERSPOT_BATCH_SIZE" default:"100" help:"Rows per commit batch." validate:"min=1,max=10000"`
	Workers   int `name:"workers" env:"WATERSPOT_WORKERS" default:"1" help:"Concurrent rows within a batch." validate:"min=1,max=64"`

	ShutdownTimeout time.Duration `name:"shutdown-timeout" env:"WATERSPOT_SHUTDOWN_TIMEOUT" default:"5s" help:"Grace period for in-flight requests." validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cross-field rules kong cannot express.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "config: validate")
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return eris.Errorf("config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", "="))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// InitLogger builds the process logger and installs it as the zap global.
func InitLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
