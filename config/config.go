/*
Package config loads the engine's runtime configuration.

SOURCES (later wins):
  1. Built-in defaults (Default)
  2. .env file, if present (joho/godotenv); only sets variables not already set
  3. YAML file named by the path argument or FUEL_CONFIG_FILE
  4. Environment variables

ENVIRONMENT:
  FUEL_HTTP_PORT          HTTP port (8080)
  FUEL_DB_PATH            SQLite path (fuel.db), ":memory:" for tests
  FUEL_LOG_LEVEL          debug|info|warn|error (info)
  FUEL_JWT_SECRET         HS256 secret; empty disables auth
  FUEL_CORS_ORIGINS       comma-separated allowed origins
  FUEL_SHIFT_TOLERANCE    shift cash band in currency units (10)
  FUEL_SALES_TOLERANCE    sales amount band in currency units (1)
  FUEL_STOCK_CRITICAL     critical stock percent (10)
  FUEL_STOCK_LOW          low stock percent (25)
  FUEL_DIGEST_CRON        cron spec for the discrepancy digest; empty disables
  FUEL_API_URL            base URL used by fuelctl remote commands
  FUEL_API_TOKEN          bearer token used by fuelctl remote commands

TOLERANCES:
  The shift and sales bands are tuned independently and live here rather
  than as literals in the calculators.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

const configFileEnv = "FUEL_CONFIG_FILE"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Stock     tank.Thresholds `yaml:"stock"`
	Digest    DigestConfig    `yaml:"digest"`
	Client    ClientConfig    `yaml:"client"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ReconcileConfig holds tolerance bands as decimal strings, e.g. "10" or "2.5".
type ReconcileConfig struct {
	ShiftTolerance string `yaml:"shift_tolerance"`
	SalesTolerance string `yaml:"sales_tolerance"`
}

type DigestConfig struct {
	Cron string `yaml:"cron"`
}

type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "fuel.db"},
		Log:      LogConfig{Level: "info"},
		Reconcile: ReconcileConfig{
			ShiftTolerance: reconcile.DefaultShiftTolerance.String(),
			SalesTolerance: reconcile.DefaultSalesTolerance.String(),
		},
		Stock:  tank.DefaultThresholds,
		Digest: DigestConfig{Cron: "0 20 * * *"},
		Client: ClientConfig{BaseURL: "http://localhost:8080"},
	}
}

// Load builds a Config. path may be empty.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(configFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString("FUEL_DB_PATH", &cfg.Database.Path)
	setString("FUEL_LOG_LEVEL", &cfg.Log.Level)
	setString("FUEL_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("FUEL_SHIFT_TOLERANCE", &cfg.Reconcile.ShiftTolerance)
	setString("FUEL_SALES_TOLERANCE", &cfg.Reconcile.SalesTolerance)
	setString("FUEL_DIGEST_CRON", &cfg.Digest.Cron)
	setString("FUEL_API_URL", &cfg.Client.BaseURL)
	setString("FUEL_API_TOKEN", &cfg.Client.Token)

	if v, ok := os.LookupEnv("FUEL_CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if err := setInt("FUEL_HTTP_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := setFloat("FUEL_STOCK_CRITICAL", &cfg.Stock.CriticalPercent); err != nil {
		return err
	}
	return setFloat("FUEL_STOCK_LOW", &cfg.Stock.LowPercent)
}

// Validate checks ranges and that tolerances parse.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if _, err := c.Tolerances(); err != nil {
		return err
	}
	if c.Stock.CriticalPercent < 0 || c.Stock.LowPercent < c.Stock.CriticalPercent {
		return fmt.Errorf("config: stock thresholds must satisfy 0 <= critical (%g) <= low (%g)",
			c.Stock.CriticalPercent, c.Stock.LowPercent)
	}
	return nil
}

// Tolerances parses the configured bands.
func (c Config) Tolerances() (reconcile.Tolerances, error) {
	shift, err := parseTolerance("shift_tolerance", c.Reconcile.ShiftTolerance, reconcile.DefaultShiftTolerance)
	if err != nil {
		return reconcile.Tolerances{}, err
	}
	sales, err := parseTolerance("sales_tolerance", c.Reconcile.SalesTolerance, reconcile.DefaultSalesTolerance)
	if err != nil {
		return reconcile.Tolerances{}, err
	}
	return reconcile.Tolerances{Shift: shift, Sales: sales}, nil
}

func parseTolerance(name, raw string, def decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: parse %s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: %s must not be negative", name)
	}
	return d, nil
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = f
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
