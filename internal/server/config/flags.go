package config

import (
	"flag"
	"fmt"

	"github.com/placementhub/vault/internal/flagx"
)

// parseFlags overlays the few settings operators commonly override on the
// command line.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   admin gRPC bind address
//	-d string   PostgreSQL DSN
//	-u string   upload directory for the local storage backend
//	-l string   log level
//
// Only these flags reach the parser, so -c/-config and flags meant for
// other tools are ignored.
func parseFlags(config *Config, args []string) error {
	args = flagx.Keep(args, "a", "g", "d", "u", "l")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "admin gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.UploadDir, "u", config.UploadDir, "upload directory")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
