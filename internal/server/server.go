package server

import (
	"context"
	"log"
	"strings"
	"time"

	"anoa.com/lostfound/internal/config"
	"anoa.com/lostfound/internal/middleware"
	"anoa.com/lostfound/internal/ratelimit"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/internal/scheduler"
	"anoa.com/lostfound/pkg/storage"

	convHttp "anoa.com/lostfound/internal/modules/conversation/delivery/http"
	convRepo "anoa.com/lostfound/internal/modules/conversation/repository"
	conversation "anoa.com/lostfound/internal/modules/conversation/service"

	hkHttp "anoa.com/lostfound/internal/modules/housekeeping/delivery/http"
	hkService "anoa.com/lostfound/internal/modules/housekeeping/service"

	itemRepo "anoa.com/lostfound/internal/modules/item/repository"

	matchHttp "anoa.com/lostfound/internal/modules/matching/delivery/http"
	matching "anoa.com/lostfound/internal/modules/matching/service"

	notiHttp "anoa.com/lostfound/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/lostfound/internal/modules/notification/repository"
	notifService "anoa.com/lostfound/internal/modules/notification/service"

	searchService "anoa.com/lostfound/internal/modules/search/service"

	userRepo "anoa.com/lostfound/internal/modules/user/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine     *gin.Engine
	broker     realtime.Broker
	dispatcher *matching.Dispatcher
	scheduler  *scheduler.Scheduler
}

func NewServer(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	userRepo := userRepo.NewUserRepository(db)
	itemRepo := itemRepo.NewItemRepository(db)

	var files storage.FileStorage
	if fs, err := storage.NewCloudinaryStorage(); err != nil {
		log.Printf("⚠️ cloudinary unavailable, chat attachments disabled: %v", err)
	} else {
		files = fs
	}

	// Redis fans events out across instances; a single instance can live
	// with the in-process hub and guard.
	var (
		broker realtime.Broker
		guard  ratelimit.Guard
	)
	if redisClient != nil {
		broker = realtime.NewRedisBroker(redisClient)
		guard = ratelimit.NewRedisGuard(redisClient)
	} else {
		log.Println("⚠️ redis not configured, using in-process broker and rate limiter")
		broker = realtime.NewLocalHub()
		guard = ratelimit.NewMemoryGuard(time.Now)
	}

	var index searchService.SearchService
	if cfg.MeiliSearchHost != "" {
		meiliHost := cfg.MeiliSearchHost
		if !strings.HasPrefix(meiliHost, "http") {
			meiliHost = "http://" + meiliHost + ":7700"
		}
		meiliClient := meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
		index = searchService.NewMeiliSearchService(meiliClient)
	}

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, broker)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, broker)

	// Conversation Module
	conversationSvc := conversation.NewConversationService(
		convRepo.NewConversationRepository(db),
		convRepo.NewMessageRepository(db),
		itemRepo,
		userRepo,
		notificationSvc,
		broker,
		guard,
		files,
		nil,
		conversation.Config{
			RateLimit:    cfg.MessageRateLimit,
			UploadFolder: cfg.CloudinaryUploadFolder,
		},
	)
	chatHandler := convHttp.NewChatHandler(conversationSvc, broker)

	// Matching Module
	matchSvc := matching.NewMatchService(itemRepo, userRepo, notificationSvc, conversationSvc, guard, cfg.Match)
	dispatcher := matching.NewDispatcher(matchSvc, cfg.Match)
	matchHandler := matchHttp.NewMatchHandler(matchSvc, dispatcher)

	// Background jobs
	housekeepingSvc := hkService.NewHousekeepingService(itemRepo, index, cfg.ArchiveAfter)
	jobs := scheduler.New(ctx)
	registerJobs(jobs, cfg, matchSvc, housekeepingSvc)
	housekeepingHandler := hkHttp.NewHousekeepingHandler(housekeepingSvc, jobs)

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/notifications/ws"},
	}))

	authMiddleware := middleware.NewAuthMiddleware(userRepo, cfg.JWTSecret)

	api := router.Group("/api")

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Admin routes
		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireAdmin())
		{
			adminGroup.POST("/matches/sweep", matchHandler.RunSweep)
			adminGroup.GET("/stats", housekeepingHandler.GetStats)
			adminGroup.GET("/stats/weekly", housekeepingHandler.GetWeeklySummary)
			adminGroup.GET("/jobs", housekeepingHandler.ListJobs)
			adminGroup.POST("/jobs/:name/run", housekeepingHandler.RunJob)
		}

		// Match routes
		protected.GET("/matches/suggestions", matchHandler.GetSuggestions)
		protected.POST("/matches/manual", matchHandler.ManualMatch)
		protected.POST("/items/:item_id/match", matchHandler.TriggerItem)

		// Chat routes
		protected.GET("/chats", chatHandler.ListChats)
		protected.POST("/chats", chatHandler.StartChat)
		protected.GET("/chats/:conversation_id/messages", chatHandler.GetHistory)
		protected.POST("/chats/:conversation_id/messages", chatHandler.SendMessage)
		protected.POST("/chats/:conversation_id/attachments", chatHandler.SendAttachment)
		protected.PUT("/chats/:conversation_id/read", chatHandler.MarkRead)
		protected.PUT("/chats/:conversation_id/resolve", chatHandler.Resolve)
		protected.PUT("/chats/:conversation_id/close", chatHandler.Close)
		protected.GET("/chats/:conversation_id/ws", chatHandler.HandleWebSocket)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.DELETE("/notifications/:id", notificationHandler.Delete)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	return &Server{
		engine:     router,
		broker:     broker,
		dispatcher: dispatcher,
		scheduler:  jobs,
	}
}

func registerJobs(jobs *scheduler.Scheduler, cfg *config.Config, matchSvc matching.MatchService, housekeeping hkService.HousekeepingService) {
	all := []scheduler.Job{
		scheduler.NewJob("match_sweep", cfg.SweepSchedule, func(ctx context.Context) error {
			matchSvc.RunGlobalMatching(ctx)
			return nil
		}),
		scheduler.NewJob("archive_resolved", cfg.HousekeepingSchedule, func(ctx context.Context) error {
			_, err := housekeeping.ArchiveResolved(ctx)
			return err
		}),
		scheduler.NewJob("item_stats", cfg.StatsSchedule, func(ctx context.Context) error {
			_, err := housekeeping.ItemStats(ctx)
			return err
		}),
		scheduler.NewJob("weekly_summary", cfg.WeeklySummarySchedule, func(ctx context.Context) error {
			_, err := housekeeping.WeeklySummary(ctx)
			return err
		}),
	}

	for _, job := range all {
		if err := jobs.Register(job); err != nil {
			log.Fatalf("failed to register job: %v", err)
		}
	}
}

// Start launches the match workers, the items-created listener and the cron
// scheduler. Everything stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.dispatcher.Run(ctx)

	go func() {
		if err := s.dispatcher.Listen(ctx, s.broker); err != nil {
			log.Printf("❌ [dispatcher] listener stopped: %v", err)
		}
	}()

	s.scheduler.Start()
	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
	}()
}

func (s *Server) Handler() *gin.Engine {
	return s.engine
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
