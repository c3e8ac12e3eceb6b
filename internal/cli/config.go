package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds settings shared by every subcommand. Environment variables
// are read first; flags override them.
type Config struct {
	DBPath          string        `env:"RAIDFINDER_DB"               envDefault:"raidfinder.db"`
	Addr            string        `env:"RAIDFINDER_ADDR"             envDefault:"127.0.0.1:8077"`
	AllowOrigin     string        `env:"RAIDFINDER_ALLOW_ORIGIN"     envDefault:"*"`
	Workers         int           `env:"RAIDFINDER_WORKERS"          envDefault:"0"`
	Title           string        `env:"RAIDFINDER_TITLE"            envDefault:"sword"`
	Badge           string        `env:"RAIDFINDER_BADGE"            envDefault:"all"`
	ShutdownTimeout time.Duration `env:"RAIDFINDER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	NoColor         bool          `env:"RAIDFINDER_NO_COLOR"`
}

// LoadConfig reads the environment into a Config
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// bindDenFlags registers the game title and badge level flags
func (c *Config) bindDenFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Title, "title", c.Title, "game title: sword or shield")
	fs.StringVar(&c.Badge, "badge", c.Badge, "badge level: all, baby or adult")
}

// bindServeFlags registers the flags only serve reads
func (c *Config) bindServeFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path (empty disables persistence)")
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.AllowOrigin, "allow-origin", c.AllowOrigin, "CORS allowed origin")
	fs.IntVar(&c.Workers, "workers", c.Workers, "scan workers (0 uses every CPU)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
}
