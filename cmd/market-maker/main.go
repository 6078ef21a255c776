package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/crossbarhq/paradigm-services/internal/api"
	"github.com/crossbarhq/paradigm-services/internal/order"
	"github.com/crossbarhq/paradigm-services/internal/paradigm"
	"github.com/crossbarhq/paradigm-services/internal/processor"
	"github.com/crossbarhq/paradigm-services/internal/publisher"
	"github.com/crossbarhq/paradigm-services/internal/rfq"
	"github.com/crossbarhq/paradigm-services/internal/secrets"
	"github.com/crossbarhq/paradigm-services/pkg/config"
	"github.com/crossbarhq/paradigm-services/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load("market-maker", "MAKER")

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [market-maker]...")

	// --- Resolve venue credentials ---
	var provider secrets.Provider
	if cfg.AWSSecretName != "" {
		var err error
		provider, err = secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
	}
	resolver := secrets.NewResolver(logger.L(), cfg.Env, provider)
	creds, err := resolver.Resolve(ctx, cfg.AccountName, secrets.Credentials{
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		logg.Fatalw("failed to resolve venue credentials", "error", err)
	}

	// --- Paradigm REST client ---
	rest := paradigm.NewRESTClient(cfg.HTTPURL, creds.AccessKey, creds.SecretKey, logger.L())

	// --- Market maker protection, checked before any quoting ---
	mmp := rfq.NewManagedMMP(rest, logger.L())
	mmp.CheckAndReset(ctx)

	// --- Connect to NATS (optional) ---
	var nc *nats.Conn
	var events *publisher.Publisher
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		events, err = publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName, logger.L())
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
	} else {
		logg.Warn("NATS_URL not configured; lifecycle events disabled")
	}

	// --- Paradigm WebSocket client ---
	ws := paradigm.NewWSClient(cfg.WSURL, creds.AccessKey, []string{
		paradigm.ChannelRFQs,
		paradigm.ChannelOrders,
		paradigm.ChannelMMP,
	}, logger.L())
	if err := ws.Connect(ctx); err != nil {
		logg.Fatalw("failed to connect venue websocket", "error", err)
	}

	// --- Instrument master ---
	instruments := rfq.NewManagedInstruments(rest, cfg.InstrumentRefreshInterval, logger.L())
	go instruments.Run(ctx)

	// --- RFQ book, seeded from REST then fed by the stream ---
	book := rfq.NewBook(rest, instruments, &rfq.MakerActions{WS: ws, Logger: logger.L()}, events, logger.L())
	book.Seed(ctx)
	openOrders := book.SeedOrders(ctx)
	logg.Infow("startup state", "open_rfqs", book.Len(), "open_orders", openOrders)

	// --- WebSocket message processor ---
	proc := processor.New(ws.Messages(), mmp, book, logger.L())
	go proc.Run(ctx)

	// --- Maker order loop ---
	maker := order.NewMaker(rest, book, mmp, events, order.MakerConfig{
		AccountName:         cfg.AccountName,
		PriceWorseThanMark:  cfg.OrderPriceWorseThanMark,
		PricingTickMultiple: cfg.OrderPricingTickMultiple,
		RefreshWindowLower:  time.Duration(cfg.OrderRefreshWindowLower * float64(time.Second)),
		RefreshWindowUpper:  time.Duration(cfg.OrderRefreshWindowUpper * float64(time.Second)),
		OrdersPerSide:       cfg.OrderNumberPerSide,
	}, logger.L())
	go maker.Run(ctx)

	// --- Operational HTTP server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	api.RegisterRoutes(app, nc, book, instruments, mmp)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[market-maker] running",
		"environment", cfg.Environment,
		"account", cfg.AccountName,
		"orders_per_side", cfg.OrderNumberPerSide)

	<-ctx.Done()
	logg.Info("shutting down [market-maker]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	// Closing the socket makes the venue cancel all resting orders.
	if err := ws.Close(); err != nil {
		logg.Warnw("ws.close_failed", "error", err)
	}
	events.Close()
}
