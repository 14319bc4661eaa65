package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/npezzotti/go-messenger/internal/api"
	"github.com/npezzotti/go-messenger/internal/config"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/retention"
	"github.com/npezzotti/go-messenger/internal/server"
	"github.com/npezzotti/go-messenger/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configFile     string
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

// loadOptions layers defaults, the config file, the environment and any
// flags set on the command line.
func loadOptions() (config.Options, error) {
	opts := config.Options{
		ServerAddr:  addr,
		DatabaseDSN: dsn,
		SigningKey:  signingKey,
	}

	if configFile != "" {
		if err := opts.LoadFile(configFile); err != nil {
			return opts, err
		}
	}

	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return opts, err
	}
	if err := opts.LoadEnv(); err != nil {
		return opts, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			opts.ServerAddr = addr
		case "dsn":
			opts.DatabaseDSN = dsn
		case "signing-key":
			opts.SigningKey = signingKey
		case "allowed-origins":
			opts.AllowedOrigins = allowedOrigins
		}
	})

	return opts, nil
}

func main() {
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string, or sqlite:<path>")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-messenger] ", log.LstdFlags)

	opts, err := loadOptions()
	if err != nil {
		logger.Fatal("config:", err)
	}

	cfg, err := opts.Build()
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	router := mux.NewRouter()

	statsUpdater := stats.NewStatsUpdater(router)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(router, logger, chatServer, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	stopRetention, err := retention.Start(context.Background(), logger, dbConn, cfg.Retention)
	if err != nil {
		logger.Fatal("retention:", err)
	}
	defer stopRetention()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
