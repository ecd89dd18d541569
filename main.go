package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixmyarea-be/access"
	"fixmyarea-be/accounts"
	"fixmyarea-be/config"
	"fixmyarea-be/controllers"
	"fixmyarea-be/events"
	"fixmyarea-be/identity"
	"fixmyarea-be/lifecycle"
	"fixmyarea-be/mailer"
	"fixmyarea-be/middlewares"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/repository"
	"fixmyarea-be/routes"
	"fixmyarea-be/store"
	"fixmyarea-be/submission"
	"fixmyarea-be/telemetry"
	"fixmyarea-be/upload"
	"fixmyarea-be/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	serviceName   = "fixmyarea-be"
	version       = "0.1.0"
	issueWindow   = 24 * time.Hour
	shutdownGrace = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Settings{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.Env,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	// document store
	var (
		docs store.Store
		db   *mongo.Database
	)
	if cfg.MongoURI != "" {
		client, database, err := config.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		ms := store.NewMongoStore(database, log)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return err
		}
		docs, db = ms, database
		log.Info("MongoDB connection established successfully!")
	} else {
		log.Warn("MONGODB_URI not set, using in-memory store; data is lost on restart")
		docs = store.NewMemoryStore()
	}

	// token state and rate limiting
	var (
		tokens  identity.TokenStore
		limiter middlewares.Limiter
	)
	if cfg.RedisAddress != "" {
		rc, err := config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rc.Close()
		tokens = identity.NewRedisTokenStore(rc, serviceName)
		limiter = middlewares.NewRedisLimiter(rc, cfg.IssueLimitQueue, cfg.IssueDailyLimit, issueWindow)
	} else {
		log.Warn("REDIS_ADDRESS not set, token revocations and rate limits are per process")
		tokens = identity.NewMemoryTokenStore(time.Now)
		limiter = middlewares.NewLocalLimiter(cfg.IssueDailyLimit, issueWindow)
	}

	r := newRouter(cfg, log)

	// object store
	var (
		objects objectstore.Client
		files   *controllers.FileController
	)
	switch cfg.ObjectStore {
	case config.ObjectStoreGridFS:
		g, err := objectstore.NewGridFS(db, objectstore.DefaultBucket, cfg.FilesPublicURL, cfg.UploadMaxImageBytes)
		if err != nil {
			return err
		}
		objects, files = g, controllers.NewFileController(g, log)
	case config.ObjectStoreCloudinary:
		objects = objectstore.NewCloudinary(cfg.CloudinaryName, cfg.CloudinaryPreset, cfg.UploadMaxImageBytes)
	default:
		disk := objectstore.NewLocalDisk(cfg.UploadDir, cfg.StaticBase, cfg.UploadMaxImageBytes)
		r.Static(disk.StaticBase(), disk.BaseDir())
		objects = disk
	}
	log.Info("object store ready", "backend", cfg.ObjectStore)

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	var mail mailer.Mailer = mailer.NewLogMailer(log)
	if cfg.SendGridAPIKey != "" {
		mail = mailer.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromAddr, log)
	}

	users := repository.NewUserRepository(docs)
	sessions := access.NewSessions()
	gate := access.NewGate(users, log)

	identitySvc := identity.NewService(identity.Deps{
		Users:       users,
		Credentials: repository.NewCredentialRepository(docs),
		Sessions:    sessions,
		Tokens:      tokens,
		Mailer:      mail,
		Logger:      log,
	}, identity.Config{
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.TokenTTL,
		ResetTTL: cfg.ResetTTL,
		ResetURL: cfg.PasswordResetURL,
	})
	submissionSvc := submission.NewService(submission.Deps{
		Issues:    repository.NewIssueRepository(docs),
		Users:     users,
		Votes:     repository.NewVoteRepository(docs),
		Gate:      gate,
		Uploader:  upload.New(objects, upload.WithMaxConcurrency(cfg.UploadConcurrency), upload.WithLogger(log)),
		Publisher: publisher,
		Lifecycle: lifecycle.New(time.Now),
		Logger:    log,
	})
	accountSvc := accounts.NewService(accounts.Deps{
		Identity:  identitySvc,
		Users:     users,
		Sessions:  sessions,
		Gate:      gate,
		Objects:   objects,
		Publisher: publisher,
		Logger:    log,
	})

	cookies := utils.CookieSettings{Production: cfg.Production(), Domain: cfg.Domain}
	routes.Register(r, routes.Handlers{
		Auth:         controllers.NewAuthController(identitySvc, cookies, log),
		Issues:       controllers.NewIssueController(submissionSvc, log, cfg.UploadTimeout, cfg.UploadMaxImageBytes),
		Users:        controllers.NewUserController(accountSvc, log, cfg.UploadMaxImageBytes),
		Files:        files,
		Authenticate: middlewares.AuthMiddleware(identitySvc, log),
		IssueLimit:   middlewares.IssueRateLimiter(limiter, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg config.Config, log *slog.Logger) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middlewares.Recovery(log), middlewares.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	return r
}
