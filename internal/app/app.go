package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "teamboard/docs"
	"teamboard/internal/config"
	"teamboard/internal/handlers"
	"teamboard/internal/pdf"
	"teamboard/internal/realtime"
	"teamboard/internal/repositories"
	"teamboard/internal/routes"
	"teamboard/internal/services"
)

// Run starts the board server and blocks until it has shut down. The result
// is the process exit code.
func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("[app][config][err] %v", err)
		return 1
	}

	// === DB ===
	db, err := repositories.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Printf("[app][db][err] %v", err)
		return 1
	}
	if err := repositories.Migrate(context.Background(), db); err != nil {
		log.Printf("[app][db][err] %v", err)
		_ = db.Close()
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Broadcast ===
	hub := realtime.NewHub()
	var publisher realtime.Publisher = hub
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay := realtime.NewRedisRelay(rdb, cfg.Redis.Channel, hub)
		publisher = relay
		go relay.Run(ctx)
		log.Printf("[app][relay] redis addr=%s", cfg.Redis.Addr)
	}

	if cfg.EmailEnabled() {
		sender := services.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword)
		notifier := services.NewAssignmentNotifier(sender, cfg.Email.FromEmail)
		hub.Subscribe(notifier)
		go notifier.Run(ctx)
	}

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// === Services ===
	secret := []byte(cfg.Auth.JWTSecret)
	authService := services.NewAuthService(userRepo, secret, cfg.Auth.TokenTTL)
	taskService := services.NewTaskService(taskRepo, userRepo, auditRepo, publisher)
	reportService := services.NewReportService(auditRepo, pdf.NewDocumentGenerator(cfg.Reports.FontPath))

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(
		router,
		secret,
		handlers.NewAuthHandler(authService),
		handlers.NewTaskHandler(taskService, reportService),
		handlers.NewEventsHandler(hub),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           corsHandler(cfg.Server.AllowedOrigins).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[app][http] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		// hijacked websocket connections are not closed by Shutdown
		hub.Close()
		cancel()
		return errors.Join(err, closeStore(ctx, taskService, db, rdb))
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"teamboard": stop,
		},
	)

	select {
	case code := <-wait:
		log.Printf("[app][shutdown] exit code %d", code)
		return code
	case err := <-serveErr:
		log.Printf("[app][http][err] %v", err)
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer done()
		if err := stop(shutdownCtx); err != nil {
			log.Printf("[app][shutdown][err] %v", err)
		}
		return 1
	}
}

// closeStore waits for pending audit writes and then releases the connections.
func closeStore(ctx context.Context, tasks services.TaskService, db *sql.DB, rdb *redis.Client) error {
	done := make(chan struct{})
	go func() {
		tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[app][shutdown][warn] audit writes still pending")
	}

	var errs []error
	if rdb != nil {
		errs = append(errs, rdb.Close())
	}
	errs = append(errs, db.Close())
	return errors.Join(errs...)
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	})
}
