package config

import (
	"flag"
	"os"
	"time"

	"github.com/arodchenko/inkwell/internal/flagx"
)

// parseFlags overlays Config fields from command-line flags:
//
//	-a string   base URL of the Inkwell API
//	-d string   path to the local client database
//	-t int      request timeout in seconds
//	-i int      session check interval in seconds
//
// os.Args is filtered to just these flags so other packages' flags do
// not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointURL, "a", cfg.ServerEndpointURL, "base URL of the Inkwell API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local client database")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	checkInterval := fs.Int("i", int(cfg.SessionCheckInterval.Seconds()), "session check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	cfg.SessionCheckInterval = time.Duration(*checkInterval) * time.Second
}
