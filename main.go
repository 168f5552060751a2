package main

import (
	"context"
	"evsim/api"
	"evsim/chargepoint"
	"evsim/client"
	"evsim/internal"
	"evsim/internal/config"
	"evsim/metrics"
	"evsim/telegram"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "evsim [charge-point-id] [central-system-url]",
		Short:        "OCPP 1.6 charge point emulator",
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.GetConfig(configPath)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				conf.ChargePoint.Id = args[0]
			}
			if len(args) > 1 {
				conf.CentralSystem.Url = args[1]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, conf)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "path to the configuration file")
	return cmd
}

func run(ctx context.Context, conf *config.Config) error {
	logger := internal.NewLogger(conf)
	defer logger.Close()

	transport := client.NewWebSocket(conf)
	cp := chargepoint.NewChargePoint(conf, transport, logger)
	cp.SetConsole(os.Stdin, os.Stdout)

	mongo, err := internal.NewMongoClient(conf)
	if err != nil {
		logger.Error("mongodb setup", err)
	}
	if mongo != nil {
		logger.SetDatabase(mongo)
		cp.AddEventHandler(mongo)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if conf.Telegram.Enabled {
		bot, err := telegram.NewBot(conf.Telegram.ApiKey, conf.Telegram.ChatId)
		if err != nil {
			logger.Error("telegram bot", err)
		} else {
			bot.Start(ctx)
			cp.AddEventHandler(bot)
		}
	}

	if conf.Api.Enabled {
		handler := api.NewHandler(cp, logger)
		if mongo != nil {
			handler.SetLogReader(mongo)
		}
		server := api.NewServer(conf, handler, logger)
		go func() {
			if err := server.Listen(ctx); err != nil {
				logger.Error("api server", err)
			}
		}()
	}
	go func() {
		if err := metrics.Listen(ctx, conf); err != nil {
			logger.Error("metrics server", err)
		}
	}()

	log.Printf("charge point %s connecting to %s", conf.ChargePoint.Id, transport.Url())
	if err = cp.Run(ctx); err != nil {
		return fmt.Errorf("session %s: %w", conf.ChargePoint.Id, err)
	}
	return nil
}
