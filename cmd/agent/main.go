package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/solarfab/linesync/app"
	"github.com/solarfab/linesync/types/config"
)

func main() {
	var (
		instance    = flag.String("instance", "station-1", "station identifier, recorded on every claim")
		apiBase     = flag.String("api", envOr("LINESYNC_API", "http://mes.solarfab.local"), "central API base URL")
		postgresURL = flag.String("postgres", envOr("LINESYNC_POSTGRES", "host=localhost port=5432 user=linesync dbname=linesync sslmode=disable"), "queue database connection string")
		redisAddr   = flag.String("redis", os.Getenv("LINESYNC_REDIS"), "redis address for the gateway cache (optional)")
		amqpURL     = flag.String("amqp", os.Getenv("LINESYNC_AMQP"), "rabbitmq url for sync triggers (optional)")
		gatewayAddr = flag.String("gateway", ":8090", "listen address for the caching gateway")
		dashPort    = flag.Uint("dashboard-port", 0, "port for the status API (0 disables it)")
	)
	flag.Parse()

	opts := []config.Option{
		config.WithAPI(*apiBase),
		config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: *postgresURL}),
		config.WithProbe(*apiBase+"/api/health", config.DefaultProbeInterval, config.DefaultProbeTimeout),
		config.WithGateway(config.GatewayConfig{
			UpstreamURL: *apiBase,
			PrefetchRoutes: []string{
				"/",
				"/orders",
				"/panels",
				"/quality",
			},
		}),
	}
	if *redisAddr != "" {
		opts = append(opts, config.WithRedisConfig(config.RedisConfig{Address: *redisAddr}))
	}
	if *amqpURL != "" {
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:        *amqpURL,
			Exchange:   "linesync",
			Queue:      "linesync.sync",
			RoutingKey: "sync",
		}))
	}
	if *dashPort != 0 {
		opts = append(opts, config.WithDashboard(
			envOr("LINESYNC_DASH_USER", "operator"),
			os.Getenv("LINESYNC_DASH_HASH"),
			*dashPort,
		))
	}

	cfg, err := config.NewConfig(*instance, opts...)
	if err != nil {
		log.Fatal(err)
	}

	container, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer container.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := container.Runtime.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer container.Runtime.Stop()

	container.Manager.Start(ctx)

	go func() {
		log.Printf("caching gateway listening on %s", *gatewayAddr)
		if err := http.ListenAndServe(*gatewayAddr, container.Gateway); err != nil {
			log.Fatal(err)
		}
	}()

	if cfg.DashboardPort != 0 {
		go func() {
			if err := container.WebAPI.Serve(); err != nil {
				log.Fatal(err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
