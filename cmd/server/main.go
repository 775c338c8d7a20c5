package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var errPanic = errors.New("panic recovered")

func main() {
	lookup, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	for {
		err := run(lookup)
		if err == nil {
			break
		}
		if !errors.Is(err, errPanic) {
			log.Fatal().Err(err).Msg("error running server")
		}
		log.Error().Err(err).Msg("restarting")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("server stopped")
}

type flagBinding struct {
	envVar string
	name   string
	usage  string
}

var flagBindings = []flagBinding{
	{config.PortEnvVar, "port", "listen port"},
	{config.EnvEnvVar, "env", "environment name, DEV enables console logs and the route listing"},
	{config.LogLevelEnvVar, "log-level", "zerolog level"},
	{config.BaseURLEnvVar, "base-url", "public base URL, also the token issuer"},
	{config.DBAdapterEnvVar, "db", "persistence adapter: memory, sqlite or postgres"},
	{config.DatabaseURLEnvVar, "database-url", "postgres connection string"},
	{config.SQLitePathEnvVar, "sqlite-path", "sqlite database file"},
	{config.PolicyFileEnvVar, "policy-file", "YAML file with additional policies"},
	{config.SigningAlgEnvVar, "signing-alg", "HS256, RS256 or ES256"},
	{config.SigningKeyFileEnvVar, "signing-key", "PEM private key for asymmetric signing"},
	{config.TrustedProxiesEnvVar, "trusted-proxies", "comma separated proxy addresses or CIDRs whose X-Forwarded-For is believed"},
}

// parseFlags layers command line flags over the environment. A flag only wins when it
// was set explicitly.
func parseFlags(args []string) (config.Lookup, error) {
	fs := pflag.NewFlagSet("logistics-auth", pflag.ContinueOnError)
	for _, b := range flagBindings {
		fs.String(b.name, "", fmt.Sprintf("%s (env %s)", b.usage, b.envVar))
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	byEnv := make(map[string]string, len(flagBindings))
	for _, b := range flagBindings {
		byEnv[b.envVar] = b.name
	}
	return func(key string) (string, bool) {
		if name, ok := byEnv[key]; ok && fs.Changed(name) {
			v, err := fs.GetString(name)
			return v, err == nil
		}
		return os.LookupEnv(key)
	}, nil
}

func run(lookup config.Lookup) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errPanic
		}
	}()

	c := config.NewWithLookup(lookup)
	log.Logger = obs.NewLogger(c.GetEnv(), c.GetLogLevel(), os.Stderr)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := assemble(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.server.InitialiseSystem(ctx); err != nil {
		return err
	}
	go purgeLoop(ctx, a)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(httpServer) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
