package main

import (
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/gateway/config"
	"github.com/aetherflow/collabedit/internal/gateway/handler"
	"github.com/aetherflow/collabedit/internal/gateway/middleware"
	"github.com/aetherflow/collabedit/internal/gateway/svc"
)

var configFile = flag.String("f", "configs/collabd.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	logx.MustSetup(logx.LogConf{
		ServiceName: c.Log.ServiceName,
		Mode:        c.Log.Mode,
		Path:        c.Log.Path,
		Level:       c.Log.Level,
	})

	server := rest.MustNewServer(c.RestConf, rest.WithCors())
	defer server.Stop()

	ctx, err := svc.NewServiceContext(c)
	if err != nil {
		fmt.Printf("failed to initialize: %v\n", err)
		return
	}
	defer ctx.Close()

	server.Use(middleware.RequestIDMiddleware)
	server.Use(middleware.LoggerMiddleware(ctx.Logger))
	if ctx.Metrics != nil {
		server.Use(middleware.MetricsMiddleware(ctx.Metrics))
	}
	if c.RateLimit.Enable {
		server.Use(middleware.RateLimitMiddleware(c.RateLimit.Rate, c.RateLimit.Burst))
	}

	handler.RegisterHandlers(server, ctx)

	ctx.Logger.Info("collaboration gateway starting",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
	)
	fmt.Printf("Starting collaboration gateway at %s:%d...\n", c.Host, c.Port)

	server.Start()
}
