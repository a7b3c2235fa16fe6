// Package app wires the agent together. The Container is the single place
// where connections are opened and components are bound to each other.
package app

import (
	"database/sql"
	"fmt"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/solarfab/linesync/client"
	"github.com/solarfab/linesync/internal/api"
	"github.com/solarfab/linesync/internal/broker"
	"github.com/solarfab/linesync/internal/cache"
	"github.com/solarfab/linesync/internal/db"
	"github.com/solarfab/linesync/internal/engine"
	"github.com/solarfab/linesync/internal/lock"
	"github.com/solarfab/linesync/internal/netmon"
	"github.com/solarfab/linesync/internal/store"
	"github.com/solarfab/linesync/internal/store/postgres"
	"github.com/solarfab/linesync/internal/worker"
	"github.com/solarfab/linesync/types/config"
	"github.com/solarfab/linesync/web"
)

// Container holds every long-lived dependency of the agent, created once and
// shared.
type Container struct {
	Config *config.Config

	DB    *sql.DB
	Redis *redis.Client

	MutationStore store.MutationStore
	RecordStore   store.RecordStore
	LockManager   lock.DistributedLockManager
	MessageBroker broker.MessageBroker
	CacheStore    cache.Store

	Monitor *netmon.Monitor
	Engine  *engine.Engine
	Gateway *worker.Gateway
	Runtime *worker.Runtime
	Manager *client.SyncManager
	WebAPI  web.HttpRouteHandler
}

// NewContainer creates and wires all dependencies. Call once per process.
// Pass WithDB or WithRedis to inject connections for testing.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	conn := opt.db
	if conn == nil {
		opened, err := db.Open(cfg.PostgresConfig.ConnectionUrl)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		conn = opened
	}

	lockMgr := lock.NewPostgresDistributedLockManager(conn)
	if !opt.skipSchema {
		if err := db.Init(conn, lockMgr); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	mutationStore := postgres.NewPostgresMutationStore(conn, cfg.FailedHighWater, cfg.PendingStaleAfter)
	recordStore := postgres.NewPostgresRecordStore(conn)

	redisClient := opt.redis
	if redisClient == nil && cfg.RedisConfig.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}

	var cacheStore cache.Store
	if redisClient != nil {
		cacheStore = cache.NewRedisStore(redisClient)
	} else {
		cacheStore = cache.NewMemoryStore()
	}

	var messageBroker broker.MessageBroker
	if cfg.UseBroker {
		mb, err := broker.NewRabbitMQ(
			cfg.RabbitMQConfig.URL,
			cfg.RabbitMQConfig.Exchange,
			cfg.RabbitMQConfig.Queue,
			cfg.RabbitMQConfig.RoutingKey,
		)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		messageBroker = mb
	}

	monitor := netmon.New(cfg.ProbeURL, cfg.ProbeInterval, cfg.ProbeTimeout)
	remote := api.NewClient(cfg.APIBaseURL, cfg.Endpoints, &http.Client{Timeout: cfg.RequestTimeout})
	syncEngine := engine.NewEngine(mutationStore, recordStore, remote, monitor, cfg)

	gateway := worker.NewGateway(cacheStore, cfg.Gateway)
	runtime := worker.NewRuntime(syncEngine, mutationStore, gateway, messageBroker, lockMgr, cfg)
	manager := client.NewSyncManager(mutationStore, recordStore, syncEngine, monitor, messageBroker, cfg)

	auth := web.NewAuthenticator(cfg.DashboardUser, cfg.DashboardPasswordHash, cfg.DashboardAuthEnabled)
	webAPI := web.NewRouteHandler(manager, auth, cfg.DashboardPort)

	return &Container{
		Config:        cfg,
		DB:            conn,
		Redis:         redisClient,
		MutationStore: mutationStore,
		RecordStore:   recordStore,
		LockManager:   lockMgr,
		MessageBroker: messageBroker,
		CacheStore:    cacheStore,
		Monitor:       monitor,
		Engine:        syncEngine,
		Gateway:       gateway,
		Runtime:       runtime,
		Manager:       manager,
		WebAPI:        webAPI,
	}, nil
}

// Close releases the container's connections.
func (c *Container) Close() error {
	var firstErr error
	if c.MessageBroker != nil {
		if err := c.MessageBroker.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.CacheStore != nil {
		if err := c.CacheStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
