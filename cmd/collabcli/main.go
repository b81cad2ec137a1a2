package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/cmd/collabcli/config"
	"github.com/aetherflow/collabedit/internal/transform"
	"github.com/aetherflow/collabedit/internal/transport"
)

var configFile = flag.String("f", "configs/collabcli.yaml", "config file path")

// collabcli connects to a gateway as a simulated editor: it joins a
// document, types the configured text one character at a time, and
// prints what the other participants do.
func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := transport.NewClient(&transport.ClientConfig{
		URL:             cfg.Server.URL,
		Token:           cfg.Server.Token,
		Logger:          logger,
		MaxAttempts:     cfg.Client.MaxAttempts,
		InitialInterval: cfg.Client.InitialInterval,
		MaxInterval:     cfg.Client.MaxInterval,
	})
	if err != nil {
		logger.Fatal("failed to create client", zap.Error(err))
	}

	registerHandlers(client, logger)

	ctx := context.Background()
	if err := client.Connect(ctx, cfg.Workload.DocumentID, cfg.Workload.UserID); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}

	client.Send(transport.EventTypeAuthenticate, map[string]string{
		"token":       cfg.Server.Token,
		"user_id":     cfg.Workload.UserID,
		"user_name":   cfg.Workload.UserName,
		"document_id": cfg.Workload.DocumentID,
	})

	stopCh := make(chan struct{})
	go typeText(client, cfg, logger, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	close(stopCh)
	client.Disconnect()
	logger.Info("client stopped")
}

// registerHandlers prints inbound collaboration events.
func registerHandlers(client *transport.Client, logger *zap.Logger) {
	client.On(transport.EventTypeSync, func(env transport.Envelope) {
		logger.Info("document synced", zap.Int("payload_bytes", len(env.Payload)))
	})
	client.On(transport.EventTypeOperation, func(env transport.Envelope) {
		fmt.Printf("remote edit: %s\n", env.Payload)
	})
	client.On(transport.EventTypeJoined, func(env transport.Envelope) {
		fmt.Printf("participant joined: %s\n", env.Payload)
	})
	client.On(transport.EventTypeLeft, func(env transport.Envelope) {
		fmt.Printf("participant left: %s\n", env.Payload)
	})
	client.On(transport.EventTypeConflictDropped, func(env transport.Envelope) {
		fmt.Printf("edit dropped by conflict resolution: %s\n", env.Payload)
	})
	client.On(transport.EventTypeError, func(env transport.Envelope) {
		logger.Warn("server error", zap.ByteString("payload", env.Payload))
	})
}

// typeText submits the workload text as single-character inserts.
func typeText(client *transport.Client, cfg *config.Config, logger *zap.Logger, stopCh chan struct{}) {
	var version uint64
	for i, r := range cfg.Workload.Text {
		select {
		case <-stopCh:
			return
		case <-time.After(cfg.Workload.TypeDelay):
		}

		opID, err := uuid.NewV7()
		if err != nil {
			continue
		}
		op := transform.Operation{
			ID:        opID.String(),
			Type:      transform.TypeInsert,
			Position:  i,
			Content:   string(r),
			UserID:    cfg.Workload.UserID,
			UserName:  cfg.Workload.UserName,
			Timestamp: time.Now(),
		}

		err = client.Send(transport.EventTypeOperation, map[string]interface{}{
			"operation":    op,
			"base_version": version,
		})
		if err != nil {
			logger.Warn("failed to send operation", zap.Error(err))
			continue
		}
		version++
	}
	logger.Info("workload finished", zap.Int("characters", len(cfg.Workload.Text)))
}

func buildLogger(c config.LogConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	_ = level.UnmarshalText([]byte(c.Level))

	if c.Format == "console" {
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		return zapConfig.Build()
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
