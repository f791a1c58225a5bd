package config

import (
	"flag"
	"os"
	"time"

	"github.com/driftletter/driftletter/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN (empty selects in-memory storage)
//	-t int      max letter title size, bytes
//	-m int      max letter content size, bytes
//	-u int      max user ID length, bytes
//	-r int      reconcile interval, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-m", "-u", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.IntVar(&config.MaxTitleBytes, "t", config.MaxTitleBytes, "max letter title size (bytes)")
	fs.IntVar(&config.MaxContentBytes, "m", config.MaxContentBytes, "max letter content size (bytes)")
	fs.IntVar(&config.MaxUserIDBytes, "u", config.MaxUserIDBytes, "max user id length (bytes)")

	reconcileInterval := fs.Int("r", int(config.ReconcileInterval.Minutes()), "reconcile_interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ReconcileInterval = time.Duration(*reconcileInterval) * time.Minute
}
