package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/blogapi/cmd/server"
	"example.com/blogapi/cmd/worker"
	appkafka "example.com/blogapi/internal/broker"
	config "example.com/blogapi/internal/init"
	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/service"
	"example.com/blogapi/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "blogapi",
	Short:         "Blog API with sessions, per-post visibility and an activity log",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Init()
		logger.SetLevel(cfg.LogLevel)
	},
	// Without a subcommand the MODE setting decides what to run.
	RunE: func(cmd *cobra.Command, args []string) error {
		switch cfg.Mode {
		case "server", "":
			return runServer(cmd.Context())
		case "worker":
			return runWorker(cmd.Context())
		default:
			return fmt.Errorf("unknown mode: %s", cfg.Mode)
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume activity events from Kafka and record them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the configured storage backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.Migrate(cfg); err != nil {
			return err
		}
		log.Println("Migrations applied")
		return nil
	},
}

var (
	addUserName     string
	addUserPassword string
	addUserAdmin    bool
)

var addUserCmd = &cobra.Command{
	Use:   "adduser",
	Short: "Create an account directly in the store (the only way to create an admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		auth := service.NewAuthenticator(st, service.StorePublisher{Store: st}, service.AuthOptions{BcryptCost: cfg.BcryptCost})
		id, err := auth.Register(cmd.Context(), service.CredentialsRequest{
			Username: addUserName,
			Password: addUserPassword,
		}, addUserAdmin)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (id=%s, admin=%t)\n", addUserName, id, addUserAdmin)
		return nil
	},
}

func init() {
	addUserCmd.Flags().StringVar(&addUserName, "username", "", "username of the new account")
	addUserCmd.Flags().StringVar(&addUserPassword, "password", "", "password of the new account")
	addUserCmd.Flags().BoolVar(&addUserAdmin, "admin", false, "grant admin rights")
	_ = addUserCmd.MarkFlagRequired("username")
	_ = addUserCmd.MarkFlagRequired("password")

	serverCmd.Flags().String("addr", "", "listen address (overrides SERVER_ADDR)")
	serverCmd.Flags().String("read-policy", "", "public, authenticated or visibility (overrides READ_POLICY)")
	_ = viper.BindPFlag("SERVER_ADDR", serverCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("READ_POLICY", serverCmd.Flags().Lookup("read-policy"))

	rootCmd.AddCommand(serverCmd, workerCmd, migrateCmd, addUserCmd)
}

func kafkaConfig() appkafka.KafkaConfig {
	return appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}
}

func runServer(ctx context.Context) error {
	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	defer st.Close()

	var publisher service.EventPublisher = service.StorePublisher{Store: st}
	if cfg.KafkaEnabled {
		kcfg := kafkaConfig()
		if err := appkafka.EnsureTopic(ctx, kcfg); err != nil {
			log.Printf("Kafka topic check failed: %v", err)
		}
		writer, err := appkafka.NewKafkaWriter(ctx, kcfg)
		if err != nil {
			return fmt.Errorf("kafka writer init failed: %w", err)
		}
		pub := appkafka.NewPublisher(writer)
		defer pub.Close()
		publisher = pub
	}

	s, err := server.New(st, publisher, cfg)
	if err != nil {
		return err
	}
	return server.Run(ctx, s, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
}

func runWorker(ctx context.Context) error {
	if !cfg.KafkaEnabled {
		return fmt.Errorf("worker mode requires KAFKA_ENABLED=true")
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}

	reader := appkafka.NewKafkaReader(kafkaConfig())
	w := worker.New(st, reader, cfg.WorkerCount, cfg.WorkerQueueSize)
	w.Run(ctx)
	return w.Close()
}

func main() {
	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("Error: %v", err)
		stop()
		os.Exit(1)
	}

	log.Println("Shutdown completed")
}
