package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmdmdm-nz/connstated/pkg/version"
)

// Config holds the application configuration from CLI flags
type Config struct {
	Port              int
	Host              string
	LogLevel          string
	MeteredInterfaces []string
	EventBacklog      int
}

// ParseFlags parses command line arguments and returns a Config
func ParseFlags() *Config {
	cfg, showVersion, err := parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.ExitOnError has already reported the problem.
		os.Exit(2)
	}

	if showVersion {
		printVersion(os.Stdout)
		os.Exit(0)
	}

	return cfg
}

func parse(fs *flag.FlagSet, args []string) (*Config, bool, error) {
	cfg := &Config{}
	var metered string

	fs.IntVar(&cfg.Port, "port", 60106, "Port to listen on")
	fs.StringVar(&cfg.Host, "host", "127.0.0.1", "Host to bind to")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&metered, "metered", "", "Comma-separated interface names to always report as metered")
	fs.IntVar(&cfg.EventBacklog, "event-backlog", 256, "Events buffered per stream subscriber before the oldest are dropped (0 = unbounded)")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	cfg.MeteredInterfaces = splitList(metered)

	return cfg, *showVersion, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "connstated version %s (commit: %s, built at: %s)\n",
		version.Version,
		version.CommitHash,
		version.BuildTime)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("Host: %s, Port: %d, LogLevel: %s, Metered: [%s], EventBacklog: %d",
		c.Host, c.Port, c.LogLevel, strings.Join(c.MeteredInterfaces, ","), c.EventBacklog)
}
