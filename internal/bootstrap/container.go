package bootstrap

import (
	"context"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/config"
	"tarot-room-be/internal/controller"
	localGateway "tarot-room-be/internal/gateway"
	"tarot-room-be/internal/handler"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/internal/service"
	"tarot-room-be/internal/websocket"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/gateway"
	pktNats "tarot-room-be/pkg/nats"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Infra holds the connections shared by the container. Nil members fall back
// to in-process implementations.
type Infra struct {
	Redis       *redis.Client
	Broadcaster broadcast.Broadcaster
	Publisher   events.Publisher
	Subscriber  *pktNats.Subscriber
}

// ConnectInfra dials NATS and Redis. Failures are logged and the container
// runs single-instance without them.
func ConnectInfra(cfg *config.Config, log logger.ILogger) Infra {
	var infra Infra

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
	} else {
		infra.Publisher = natsPub
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to connect to NATS Subscriber", map[string]interface{}{"error": err.Error()})
	} else {
		infra.Subscriber = natsSub
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Warn("BOOTSTRAP", "Failed to connect to Redis, broadcasting in-process only", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return infra
	}
	infra.Redis = rdb

	realtimeLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogPath)
	b, err := broadcast.NewRedisBroadcaster(rdb, realtimeLogger)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to start Redis broadcaster", map[string]interface{}{"error": err.Error()})
	} else {
		infra.Broadcaster = b
	}
	return infra
}

type Container struct {
	Logger logger.ILogger

	// Controllers
	ReadingController    controller.IReadingController
	ReadingStreamHandler *handler.ReadingStreamHandler

	// Gateway is the in-process persistence and broadcast boundary.
	Gateway gateway.Gateway

	// Background Services (Exposed for main.go to run)
	SweeperService  service.ISessionSweeperService
	ActivityService *service.ActivityService
	WebSocketHub    *websocket.Hub

	Broadcaster broadcast.Broadcaster
}

func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger, infra Infra) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)

	// 2. Event Bus
	broadcaster := infra.Broadcaster
	if broadcaster == nil {
		broadcaster = broadcast.NewLocalBroadcaster(sysLogger)
	}
	var publisher events.Publisher = events.NopPublisher{}
	if infra.Publisher != nil {
		publisher = infra.Publisher
	}

	// 3. Services
	sessionService := service.NewReadingSessionService(
		uowFactory,
		broadcaster,
		publisher,
		service.ReadingSessionConfig{GuestWritesEnabled: cfg.Reading.GuestWritesEnabled},
		nil,
		sysLogger,
	)
	participantService := service.NewParticipantService(uowFactory, broadcaster, publisher, nil, sysLogger)
	profileService := service.NewProfileService(uowFactory, nil, sysLogger)
	migrationService := service.NewMigrationService(uowFactory, broadcaster, publisher, nil, sysLogger)
	sweeperService := service.NewSessionSweeperService(
		uowFactory,
		broadcaster,
		publisher,
		cfg.Reading.SessionIdleTimeout,
		cfg.Reading.SweepInterval,
		nil,
		sysLogger,
	)

	var activityService *service.ActivityService
	if infra.Subscriber != nil {
		activityService = service.NewActivityService(infra.Subscriber, sweeperService, sysLogger)
	} else {
		sysLogger.Warn("BOOTSTRAP", "NATS subscriber unavailable, departures are only picked up by the sweeper", nil)
	}

	// 4. Realtime
	wsHub := websocket.NewHub(broadcaster, sysLogger)

	return &Container{
		Logger:               sysLogger,
		ReadingController:    controller.NewReadingController(sessionService, participantService, profileService, migrationService),
		ReadingStreamHandler: handler.NewReadingStreamHandler(sessionService, wsHub, sysLogger),
		Gateway:              localGateway.NewLocalGateway(sessionService, participantService, profileService, migrationService, broadcaster),
		SweeperService:       sweeperService,
		ActivityService:      activityService,
		WebSocketHub:         wsHub,
		Broadcaster:          broadcaster,
	}
}

// Start runs the background services until ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)
	go c.SweeperService.Start(ctx)
	if c.ActivityService != nil {
		c.ActivityService.Start(ctx)
	}
}
