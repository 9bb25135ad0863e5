package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatali-fataliyev/envelope_budget/api"
	"github.com/fatali-fataliyev/envelope_budget/internal/auth"
	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/config"
	"github.com/fatali-fataliyev/envelope_budget/internal/notify"
	"github.com/fatali-fataliyev/envelope_budget/internal/storage"
	"github.com/fatali-fataliyev/envelope_budget/logging"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	hashKey := flag.String("hash-key", "", "print the bcrypt hash of an API key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashAPIKey(*hashKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Configure(logging.Options{Level: cfg.App.LogLevel, Env: cfg.App.Env, LogDir: cfg.App.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logging.Logger.Info("application starting...")

	storageInstance, closeStorage, err := openStorage(cfg.Storage)
	if err != nil {
		logging.Logger.Errorf("failed to initialize storage: %v", err)
		os.Exit(1)
	}
	defer closeStorage.Close()

	publisher, closePublisher, err := openPublisher(cfg)
	if err != nil {
		logging.Logger.Errorf("failed to connect to message broker: %v", err)
		os.Exit(1)
	}
	defer closePublisher.Close()

	credentials := make([]auth.Credential, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		credentials = append(credentials, auth.Credential{OwnerID: k.OwnerID, Hash: k.Hash})
	}

	bt := budget.NewBudgetTracker(storageInstance, publisher)
	server := api.NewApi(bt, auth.NewAuthenticator(credentials)).Routes()

	corsConf := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})

	logging.Logger.Infof("starting server on port %s with %s storage", cfg.App.Port, bt.StorageType)
	if err := http.ListenAndServe(":"+cfg.App.Port, corsConf.Handler(server)); err != nil {
		logging.Logger.Errorf("failed to start server: %v", err)
		os.Exit(1)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStorage(cfg config.Storage) (budget.Storage, io.Closer, error) {
	switch cfg.Type {
	case storage.StorageTypeMySQL:
		s, err := storage.InitMySQL(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case storage.StorageTypeSQLite:
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case storage.StorageTypeInMemory:
		logging.Logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewInMemoryStorage(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func openPublisher(cfg *config.Config) (budget.Publisher, io.Closer, error) {
	if cfg.AMQP.URL == "" {
		logging.Logger.Info("no AMQP url configured, budget events go to the log")
		return notify.LogPublisher{}, nopCloser{}, nil
	}
	p, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}
