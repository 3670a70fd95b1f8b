package cmd

import (
	"context"
	"errors"
	"evsim/internal"
	"evsim/internal/config"
	"evsim/metrics"
	"evsim/notifier"
	"evsim/registry"
	"evsim/station"
	"evsim/telegram"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string // path to the yaml configuration
	logLevel   string // overrides log_level of the configuration
	stationId  string // overrides station.id of the configuration
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "evsim",
	Short: "OCPP 1.6-J charge point emulator",
}

// runCmd connects the emulated station and serves the operator api until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the charge point emulator",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("configuration: %v", err)
		}
		if stationId != "" {
			conf.Station.Id = stationId
		}
		if conf.Station.Id == "" {
			conf.Station.Id = "evsim-" + uuid.NewString()[:8]
		}
		if logLevel != "" {
			conf.LogLevel = logLevel
		}
		if err = run(conf); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func run(conf *config.Config) error {
	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return fmt.Errorf("time zone initialization failed: %s", err)
	}

	logService := internal.NewLogger(location)
	defer logService.Close()
	if err = logService.SetLevel(conf.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %s: %s", conf.LogLevel, err)
	}
	logService.SetDebugMode(conf.IsDebug)

	database, err := internal.NewMongoClient(conf)
	if err != nil {
		return fmt.Errorf("mongodb setup failed: %s", err)
	}
	if database != nil {
		logService.SetDatabase(database)
		log.Println("mongodb is configured and enabled")
	} else {
		log.Println("database is disabled")
	}

	store, err := configurationStore(conf, database)
	if err != nil {
		return err
	}

	chargePoint, err := station.NewChargePoint(conf, logService, store, nil)
	if err != nil {
		return fmt.Errorf("station setup failed: %s", err)
	}

	if conf.Metrics.Enabled {
		chargePoint.Subscribe(metrics.NewListener())
		go func() {
			if err := metrics.Listen(conf); err != nil {
				logService.Error("metrics server failed", err)
			}
		}()
	}

	nats, err := notifier.Connect(conf, logService)
	if err != nil {
		return fmt.Errorf("nats setup failed: %s", err)
	}
	if nats != nil {
		defer nats.Close()
		chargePoint.Subscribe(nats)
		log.Println("nats notifier is configured and enabled")
	}

	bot, err := telegram.NewBot(conf)
	if err != nil {
		return fmt.Errorf("telegram bot setup failed: %s", err)
	}
	if bot != nil {
		defer bot.Close()
		chargePoint.Subscribe(bot)
		log.Println("telegram bot is configured and enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the loop outlives the signal context so the connection is closed on the loop at shutdown
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	chargePoint.Start(loopCtx)

	var api *station.Api
	if conf.Api.Enabled {
		api = station.NewApi(conf, chargePoint, logService)
		if database != nil {
			api.SetLogReader(database)
		}
		go func() {
			if err := api.Start(); err != nil {
				logService.Error("api server failed", err)
			}
		}()
	}

	if conf.CentralSystem.AutoConnect {
		if conf.CentralSystem.ReconnectInterval > 0 {
			go chargePoint.KeepConnected(ctx, time.Duration(conf.CentralSystem.ReconnectInterval)*time.Second)
		} else if err := chargePoint.Connect(ctx); err != nil {
			logService.Error("connect to central system", err)
		}
	}

	<-ctx.Done()
	logService.Debug("shutting down")
	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			logService.Error("api shutdown", err)
		}
	}
	if err := chargePoint.Disconnect(); err != nil && !errors.Is(err, station.ErrDisconnected) {
		logService.Error("disconnect", err)
	}
	stopLoop()
	<-chargePoint.Done()
	return nil
}

// configurationStore selects where OCPP configuration values are kept
func configurationStore(conf *config.Config, database *internal.MongoDB) (registry.Store, error) {
	switch conf.Configuration.Store {
	case "", "memory":
		return registry.NewMemoryStore(), nil
	case "file":
		store, err := registry.NewFileStore(conf.Configuration.FilePath)
		if err != nil {
			return nil, fmt.Errorf("configuration file %s: %s", conf.Configuration.FilePath, err)
		}
		return store, nil
	case "mongo":
		if database == nil {
			return nil, fmt.Errorf("configuration store mongo requires mongo.enabled")
		}
		return database.Store(), nil
	default:
		return nil, fmt.Errorf("unknown configuration store %q", conf.Configuration.Store)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&stationId, "station-id", "", "Charge point identity, overrides the configuration")

	rootCmd.AddCommand(runCmd)
}
