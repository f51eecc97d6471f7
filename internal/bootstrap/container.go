package bootstrap

import (
	"context"
	"log"
	"os"

	"classlive-be/internal/config"
	"classlive-be/internal/controller"
	"classlive-be/internal/handler"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/pkg/mailer"
	"classlive-be/internal/repository/implementation"
	"classlive-be/internal/repository/memory"
	"classlive-be/internal/service"
	"classlive-be/internal/websocket"
	"classlive-be/pkg/docstore"
	"classlive-be/pkg/docstore/gormstore"
	memstore "classlive-be/pkg/docstore/memory"

	pktNats "classlive-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventTopic = "session_events"

type Container struct {
	// Controllers
	SessionController  controller.ISessionController
	PresenceController controller.IPresenceController

	// Background Services (Exposed for main.go to run)
	NotifierService service.INotifierService

	// WebSockets
	LiveHandler  *handler.LiveHandler
	WebSocketHub *websocket.Hub
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
	)

	// 2. Document Store
	var store docstore.Store
	switch cfg.Store.Driver {
	case "postgres":
		pgStore, err := gormstore.Open(cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatalf("[FATAL] Failed to open postgres document store: %v", err)
		}
		store = pgStore
		log.Printf("[INFO] Using Document Store: POSTGRES")
	default:
		store = memstore.NewStore()
		log.Printf("[INFO] Using Document Store: MEMORY")
	}

	// 3. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// Each instance gets an identity so events relayed through NATS and
	// redis are not applied twice on the instance that raised them.
	instanceId := uuid.NewString()

	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/live.log")
	wsHub := websocket.NewHub(rdb, instanceId, wsLogger)
	go wsHub.Run()

	// 4. Repositories
	sessionRepo := implementation.NewSessionRepository(store)
	presenceRepo := implementation.NewPresenceRepository(store)
	sessionCache := memory.NewSessionCache(cfg.Session.CacheTTL)

	// 5. Services
	publisherService := service.NewPublisherService(eventTopic, instanceId, pubSub, natsPub, sysLogger)

	// There is no user directory in this service; end-of-session summaries
	// go to the configured mailbox when one is set.
	teacherEmails := func(teacherId string) string {
		return os.Getenv("SESSION_SUMMARY_EMAIL")
	}

	presenceService := service.NewPresenceService(presenceRepo, sysLogger)
	sessionService := service.NewSessionService(
		sessionRepo,
		sessionCache,
		publisherService,
		emailService,
		teacherEmails,
		sysLogger,
	)
	membershipService := service.NewMembershipService(
		sessionRepo,
		sessionCache,
		presenceService,
		publisherService,
		sysLogger,
	)
	reaperService := service.NewReaperService(
		sessionRepo,
		sessionService,
		publisherService,
		cfg.Session,
		sysLogger,
	)
	watchService := service.NewWatchService(sessionRepo, reaperService, cfg.Session, sysLogger)

	notifierService := service.NewNotifierService(
		pubSub,
		eventTopic,
		instanceId,
		natsSub,
		sessionRepo,
		wsHub,
		wsLogger,
	)

	// 6. Controllers & Handlers
	sessionController := controller.NewSessionController(sessionService, membershipService, reaperService, sessionRepo)
	presenceController := controller.NewPresenceController(presenceService)
	liveHandler := handler.NewLiveHandler(wsHub, watchService, publisherService, wsLogger)

	return &Container{
		SessionController:  sessionController,
		PresenceController: presenceController,
		NotifierService:    notifierService,
		LiveHandler:        liveHandler,
		WebSocketHub:       wsHub,
	}
}
