package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/core-coin/solvere/internal/blockchain"
	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/http_api"
	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/notificator"
	"github.com/core-coin/solvere/internal/repository"
	"github.com/core-coin/solvere/internal/solvere"
	"github.com/core-coin/solvere/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "solvere",
		Usage: "Solvere verifies on-chain payments and runs merchant subscriptions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "blockchain-service-url", Aliases: []string{"b"}, Usage: "Blockchain service URL"},
			&cli.StringFlag{Name: "smart-contract-address", Aliases: []string{"s"}, Usage: "Payments contract address"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.StringFlag{Name: "redis-addr", Aliases: []string{"r"}, Usage: "Redis address for the merchant cache"},
			&cli.DurationFlag{Name: "sweep-interval", Usage: "Interval of the subscription expiration sweep"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the background jobs (default)",
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "Expire active subscriptions whose period has ended, then exit",
				Action: sweep,
			},
			{
				Name:   "remind",
				Usage:  "Mark due subscriptions as payment required, then exit",
				Action: remind,
			},
			{
				Name:  "merchant",
				Usage: "Resolve or create the merchant of a wallet and print its API key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "wallet", Aliases: []string{"w"}, Usage: "Merchant wallet address", Required: true},
				},
				Action: merchant,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("blockchain-service-url") {
		cfg.BlockchainServiceURL = c.String("blockchain-service-url")
	}
	if c.IsSet("smart-contract-address") {
		cfg.SmartContractAddress = c.String("smart-contract-address")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("redis-addr") {
		cfg.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("sweep-interval") {
		cfg.SweepInterval = c.Duration("sweep-interval")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// flags may have broken what the environment got right
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// application holds the wired components shared by every command.
type application struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *repository.Database
	cache   *repository.RedisMerchantCache
	gocore  *blockchain.Gocore
	metrics *metrics.Metrics

	telegram *notificator.TelegramNotificator
	solvere  *solvere.Solvere
}

func newApplication(c *cli.Context) (*application, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log.Named("repository"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	a := &application{
		cfg:     cfg,
		log:     log,
		db:      db,
		metrics: metrics.New(),
	}
	opts := []solvere.Option{solvere.WithMetrics(a.metrics)}

	// Initialize the merchant cache
	if cfg.RedisAddr != "" {
		a.cache, err = repository.NewRedisMerchantCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.Named("cache"))
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, solvere.WithMerchantCache(a.cache))
	}

	// Initialize blockchain service
	a.gocore = blockchain.NewGocore(cfg.BlockchainServiceURL, cfg.SmartContractAddress, cfg.RPCTimeout, log.Named("blockchain"))

	// Initialize notificators
	if cfg.TelegramBotToken != "" {
		a.telegram, err = notificator.NewTelegramNotificator(log.Named("telegram"), cfg.TelegramBotToken, cfg.TelegramOpsChatID)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	webhooks := notificator.NewWebhookNotificator(log.Named("webhook"), cfg.WebhookTimeout, a.metrics)
	notif := notificator.NewNotificator(log.Named("notificator"), db, webhooks, a.telegram)

	// Create Solvere instance
	a.solvere = solvere.NewSolvere(db, a.gocore, notif, log.Named("solvere"), cfg, opts...)
	return a, nil
}

func (a *application) Close() {
	if a.solvere != nil {
		a.solvere.Wait()
	}
	if a.gocore != nil {
		if err := a.gocore.Close(); err != nil {
			a.log.Error("Failed to close blockchain connection: ", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Error("Failed to close Redis: ", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Error("Failed to close database: ", err)
	}
	_ = a.log.Sync()
}

func serve(c *cli.Context) error {
	a, err := newApplication(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.gocore.Run(); err != nil {
		return err
	}
	if a.telegram != nil {
		a.telegram.Start(ctx)
	}

	// Start the background jobs
	if err := a.solvere.Start(ctx); err != nil {
		return fmt.Errorf("failed to start background jobs: %v", err)
	}

	apiServer := http_api.NewHTTPServer(a.solvere, a.cfg.APIPort, a.cfg.AdminToken, a.metrics.Registry, a.log.Named("http"))
	go apiServer.Start()

	<-ctx.Done()
	a.log.Info("Shutdown signal received")
	err = apiServer.Shutdown()
	// jobs must be done before Close releases the database
	a.solvere.Stop()
	return err
}

func sweep(c *cli.Context) error {
	a, err := newApplication(c)
	if err != nil {
		return err
	}
	defer a.Close()

	expired, err := a.solvere.SweepExpired(c.Context, time.Now().Unix())
	if err != nil {
		return err
	}
	fmt.Printf("expired %d subscriptions\n", expired)
	return nil
}

func remind(c *cli.Context) error {
	a, err := newApplication(c)
	if err != nil {
		return err
	}
	defer a.Close()

	marked, err := a.solvere.RunRenewalReminders(c.Context, time.Now().Unix())
	if err != nil {
		return err
	}
	fmt.Printf("marked %d subscriptions as payment required\n", marked)
	return nil
}

func merchant(c *cli.Context) error {
	a, err := newApplication(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	id, err := a.solvere.ResolveOrCreateMerchant(ctx, c.String("wallet"))
	if err != nil {
		return err
	}
	m, err := a.solvere.GetMerchant(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("merchant_id: %s\nwallet: %s\napi_key: %s\n", m.ID, m.Wallet, m.APIKey)
	return nil
}
