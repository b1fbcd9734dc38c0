package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	custodyapp "github.com/hodlfi/btclending/internal/custody/application"
	custodymysql "github.com/hodlfi/btclending/internal/custody/infrastructure/persistence/mysql"
	custodyhttp "github.com/hodlfi/btclending/internal/custody/interfaces/http"
	lendingapp "github.com/hodlfi/btclending/internal/lending/application"
	lendingdomain "github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/internal/lending/infrastructure/messaging"
	lendingmysql "github.com/hodlfi/btclending/internal/lending/infrastructure/persistence/mysql"
	lendinghttp "github.com/hodlfi/btclending/internal/lending/interfaces/http"
	portfolioapp "github.com/hodlfi/btclending/internal/portfolio/application"
	portfoliohttp "github.com/hodlfi/btclending/internal/portfolio/interfaces/http"
	pricefeedapp "github.com/hodlfi/btclending/internal/pricefeed/application"
	pricefeedconsumer "github.com/hodlfi/btclending/internal/pricefeed/interfaces/consumer"
	pricefeedhttp "github.com/hodlfi/btclending/internal/pricefeed/interfaces/http"
	"github.com/hodlfi/btclending/pkg/cache"
	"github.com/hodlfi/btclending/pkg/config"
	"github.com/hodlfi/btclending/pkg/db"
	"github.com/hodlfi/btclending/pkg/logger"
	"github.com/hodlfi/btclending/pkg/metrics"
	"github.com/hodlfi/btclending/pkg/middleware"
	"github.com/hodlfi/btclending/pkg/mq"
)

const priceSymbol = "BTC-USD"

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(ctx, "service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	m := metrics.New(cfg.ServiceName)

	database, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(&lendingmysql.LoanModel{}, &custodymysql.LockModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisCache, err := cache.New(cfg.Redis)
	if err != nil {
		// Price restore across restarts degrades; everything else works.
		logger.Warn(ctx, "redis unavailable, continuing without price cache", "error", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	producer := mq.NewProducer(cfg.Kafka)
	defer producer.Close()
	priceConsumer := mq.NewConsumer(cfg.Kafka, cfg.Kafka.PriceTopic)
	defer priceConsumer.Close()

	params := lendingParams(cfg.Lending)

	loanRepo := lendingmysql.NewLoanRepository(database)
	lockRepo := custodymysql.NewLockRepository(database)
	publisher := messaging.NewKafkaEventPublisher(producer, cfg.Kafka.EventTopic)

	custodyService := custodyapp.NewCustodyService(lockRepo, cfg.Custody.RequiredConfirmations, log)
	lendingService := lendingapp.NewLendingService(loanRepo, custodyService, publisher, params, m, log)

	priceService := pricefeedapp.NewPriceService(redisCache, log)
	if err := priceService.Restore(ctx); err != nil {
		logger.Warn(ctx, "failed to restore last price", "error", err)
	}

	portfolioService := portfolioapp.NewPortfolioService(loanRepo, priceService, params, log)

	router := newRouter(cfg, m)
	api := router.Group("/api/v1")
	lendinghttp.NewLendingHandler(lendingService, priceService).RegisterRoutes(api)
	portfoliohttp.NewPortfolioHandler(portfolioService).RegisterRoutes(api)
	custodyhttp.NewCustodyHandler(custodyService).RegisterRoutes(api)
	pricefeedhttp.NewPriceHandler(priceService, lendingService).RegisterRoutes(api)

	server := &http.Server{
		Addr:         cfg.HTTP.Host + ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	tickHandler := pricefeedconsumer.NewPriceTickHandler(priceService, lendingService, priceSymbol, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "http server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info(gctx, "price tick consumer starting", "topic", cfg.Kafka.PriceTopic)
		return mq.Run(gctx, priceConsumer, tickHandler.Handle)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, m *metrics.Metrics) *gin.Engine {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.RequestLogging(), middleware.Metrics(m))

	router.GET("/sys/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "version": cfg.Version})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	return router
}

func lendingParams(cfg config.LendingConfig) lendingdomain.Params {
	fees := make(map[int]decimal.Decimal, len(cfg.ExtensionFees))
	for days, fee := range cfg.ExtensionFees {
		d, err := strconv.Atoi(days)
		if err != nil {
			continue
		}
		fees[d] = decimal.NewFromFloat(fee)
	}
	return lendingdomain.Params{
		LoanToValueRatio:     decimal.NewFromFloat(cfg.LoanToValueRatio),
		LiquidationThreshold: decimal.NewFromFloat(cfg.LiquidationThreshold),
		InterestRateAnnual:   decimal.NewFromFloat(cfg.InterestRateAnnual),
		MinimumCollateral:    decimal.NewFromFloat(cfg.MinimumCollateral),
		MaximumCollateral:    decimal.NewFromFloat(cfg.MaximumCollateral),
		MinimumLoanAmount:    decimal.NewFromFloat(cfg.MinimumLoanAmount),
		MaximumLoanAmount:    decimal.NewFromFloat(cfg.MaximumLoanAmount),
		MaxDurationDays:      cfg.MaxDurationDays,
		GracePeriodDays:      cfg.GracePeriodDays,
		ExtensionFees:        fees,
	}
}
