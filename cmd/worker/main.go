package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/tailor-orderflow/internal/alteration"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
	"github.com/imrishuroy/tailor-orderflow/internal/config"
	"github.com/imrishuroy/tailor-orderflow/internal/logging"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}
	store := orders.NewDynamoStore(clients.DynamoDB, orders.Tables{
		Orders:    cfg.OrdersTable,
		Vendors:   cfg.VendorsTable,
		Approvals: cfg.ApprovalsTable,
	})
	p := NewProcessor(alteration.New(store, alteration.WithLogger(logger)), logger)

	// If RUN_LOCAL=true, process a single simulated message and exit.
	if cfg.RunLocal {
		body := localBody()
		resp, err := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler error", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
