package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/tailor-orderflow/internal/alteration"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
	"github.com/imrishuroy/tailor-orderflow/internal/config"
	orderevents "github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/handlers"
	"github.com/imrishuroy/tailor-orderflow/internal/idempotency"
	"github.com/imrishuroy/tailor-orderflow/internal/lifecycle"
	"github.com/imrishuroy/tailor-orderflow/internal/logging"
	"github.com/imrishuroy/tailor-orderflow/internal/metrics"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/policy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestID())
	r.Use(logging.Logger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

// buildHandlerConfig wires the engines onto the configured store backend.
func buildHandlerConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (handlers.HandlerConfig, error) {
	var (
		store     orders.Store
		keys      idempotency.Keeper
		publisher orderevents.Publisher = orderevents.Nop{}
		recorder  metrics.Recorder      = metrics.Nop{}
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		store = orders.NewMemoryStore()
		keys = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	default:
		clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return handlers.HandlerConfig{}, fmt.Errorf("init aws clients: %w", err)
		}
		store = orders.NewDynamoStore(clients.DynamoDB, orders.Tables{
			Orders:    cfg.OrdersTable,
			Vendors:   cfg.VendorsTable,
			Approvals: cfg.ApprovalsTable,
		})
		keys = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
		if cfg.OrdersQueueURL != "" {
			publisher = orderevents.NewSQSPublisher(aws.NewEventQueue(clients.SQS, cfg.OrdersQueueURL), logger)
		}
		if cfg.MetricsEnabled {
			recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger)
		}
	}

	pol := policy.New(policy.Windows{
		ConsumerEdit:   cfg.ConsumerEditWindow,
		ConsumerCancel: cfg.ConsumerCancelWindow,
		B2BEdit:        cfg.B2BEditWindow,
	})
	engine := lifecycle.New(store, pol,
		lifecycle.WithEvents(publisher),
		lifecycle.WithMetrics(recorder),
		lifecycle.WithLogger(logger),
		lifecycle.WithRates(lifecycle.Rates{
			Consumer: decimal.NewFromFloat(cfg.ConsumerGSTRate),
			B2B:      decimal.NewFromFloat(cfg.B2BGSTRate),
		}),
	)
	alterations := alteration.New(store,
		alteration.WithEvents(publisher),
		alteration.WithMetrics(recorder),
		alteration.WithLogger(logger),
	)

	return handlers.HandlerConfig{
		Lifecycle:   engine,
		Alterations: alterations,
		Idempotency: keys,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	handlerCfg, err := buildHandlerConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire dependencies", zap.Error(err))
	}

	r := setupRouter(handlerCfg)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server",
			zap.String("addr", addr),
			zap.String("store", cfg.StoreBackend))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
