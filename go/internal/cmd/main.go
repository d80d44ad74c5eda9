// votectl drives a livevote server from the command line.
//
//	votectl [-server URL] start [-choice ID] [-a LABEL] [-b LABEL] [-duration 10s]
//	votectl [-server URL] vote -voter ID -choice A|B
//	votectl [-server URL] reset
//	votectl [-server URL] state
//	votectl [-server URL] stats
//	votectl [-server URL] watch
//
// Server events are printed to stdout as JSON lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/livevote/go/clients/livevote_client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	defaultServer := getEnv("LIVEVOTE_URL", livevote_client.DefaultBaseURL)

	fs := flag.NewFlagSet("votectl", flag.ExitOnError)
	server := fs.String("server", defaultServer, "livevote server base URL")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = usage(fs)
	fs.Parse(os.Args[1:])

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := livevote_client.NewLiveVoteClient(*server)
	if err := run(ctx, client, fs.Arg(0), fs.Args()[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Str("command", fs.Arg(0)).Msg("votectl failed")
	}
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "usage: votectl [-server URL] <start|vote|reset|state|stats|watch> [flags]\n")
		fs.PrintDefaults()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
