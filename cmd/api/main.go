package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"coursehub/internal/adapter/api"
	"coursehub/internal/adapter/api/handler"
	apimiddleware "coursehub/internal/adapter/api/middleware"
	"coursehub/internal/adapter/api/router"
	"coursehub/internal/adapter/repository"
	"coursehub/internal/adapter/repository/memory"
	domainrepo "coursehub/internal/domain/repository"
	"coursehub/internal/domain/service"
	"coursehub/internal/infrastructure/firebase"
	"coursehub/internal/infrastructure/jwtauth"
	"coursehub/internal/infrastructure/presence"
	"coursehub/internal/infrastructure/ratelimit"
	"coursehub/internal/infrastructure/reward"
	"coursehub/internal/infrastructure/storage"
	"coursehub/internal/infrastructure/websocket"
	"coursehub/internal/usecase"
	"coursehub/pkg/config"
	"coursehub/pkg/logger"
)

type repositories struct {
	conversations domainrepo.ConversationRepository
	messages      domainrepo.MessageRepository
	users         domainrepo.UserRepository
	courses       domainrepo.CourseRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Environment, cfg.RollbarToken)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := credentialOptions(cfg)

	var firebaseApp *fbapp.App
	if cfg.StoreBackend == config.StoreFirestore || cfg.AuthProvider == config.AuthFirebase {
		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	// Repositories
	var repos repositories
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = repositories{
			conversations: repository.NewFirestoreConversationRepository(firestoreClient),
			messages:      repository.NewFirestoreMessageRepository(firestoreClient),
			users:         repository.NewFirestoreUserRepository(firestoreClient),
			courses:       repository.NewFirestoreCourseRepository(firestoreClient),
		}
	default:
		msgs := memory.NewMessageRepository()
		users := memory.NewUserRepository()
		courses := memory.NewCourseRepository()
		if cfg.SeedFile != "" {
			if err := memory.LoadFixtures(cfg.SeedFile, users, courses); err != nil {
				log.Fatalf("Failed to load seed file %s: %v", cfg.SeedFile, err)
			}
		}
		repos = repositories{
			conversations: memory.NewConversationRepository(msgs),
			messages:      msgs,
			users:         users,
			courses:       courses,
		}
		logger.Warn("Using the in-memory store; data is lost on restart")
	}

	// Identity
	var verifier service.IdentityVerifier
	var authPinger handler.Pinger
	var devIssuer *jwtauth.Verifier
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		firebaseAuth := firebase.NewFirebaseAuthClient(authClient)
		verifier = firebaseAuth
		authPinger = firebaseAuth
	default:
		devIssuer = jwtauth.NewVerifier(cfg.JWTSecret, cfg.JWTExpiry)
		verifier = devIssuer
	}

	// Presence
	var registry service.PresenceRegistry = presence.NewMemoryRegistry()
	if cfg.PresenceBackend == config.PresenceRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		registry = presence.NewRedisRegistry(redisClient)
	}

	// Reward ledger
	var rewards service.RewardNotifier = reward.NoopNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := reward.NewKafkaNotifier(cfg.KafkaBrokers, cfg.RewardTopic)
		defer kafkaNotifier.Close()
		rewards = kafkaNotifier
	}

	// Attachments
	var attachments service.AttachmentGateway
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.MaxUploadSize, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()
		attachments = storageClient
	} else {
		attachments = storage.NewMemoryGateway("http://localhost:"+cfg.ServerPort+"/files", cfg.MaxUploadSize)
	}

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(ctx)

	wsManager := websocket.NewManager(nil, registry)

	chatUseCase := usecase.NewChatUseCase(
		repos.conversations,
		repos.messages,
		repos.users,
		wsManager,
		registry,
		attachments,
		rewards,
		rateLimiter,
		cfg.MaxAttachments,
	)
	groupUseCase := usecase.NewGroupUseCase(
		repos.conversations,
		repos.users,
		repos.courses,
		wsManager,
		rewards,
		rateLimiter,
	)

	wsManager.SetChatService(chatUseCase)
	wsManager.SetContactsResolver(chatUseCase.Contacts)
	wsManager.Start(ctx)

	handler.Setup(chatUseCase, groupUseCase)
	handler.SetupHealthHandler(authPinger, wsManager)
	if devIssuer != nil {
		handler.SetupDevTokenHandler(devIssuer, repos.users)
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	// room for multipart framing around the largest allowed upload set
	e.Use(middleware.BodyLimit(bodyLimit(cfg)))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	activeMiddleware := apimiddleware.NewActiveUserMiddleware(repos.users)

	upgradeLimiter := apimiddleware.NewIPRateLimiter(time.Second, 10)
	upgradeLimiter.StartCleanup(ctx, 10*time.Minute)

	router.Setup(e, authMiddleware, activeMiddleware)
	router.SetupDevRouter(e, cfg.Environment)
	router.SetupWebSocketRouter(e,
		handler.NewWebSocketHandler(wsManager, authMiddleware, repos.users, cfg.AllowedOrigins),
		upgradeLimiter.Middleware(),
	)

	go func() {
		logger.Info("Starting server on port %s (store=%s auth=%s presence=%s)", cfg.ServerPort, cfg.StoreBackend, cfg.AuthProvider, cfg.PresenceBackend)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func credentialOptions(cfg *config.Config) []option.ClientOption {
	switch {
	case cfg.FirebaseCredentialJSON != "":
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialJSON))}
	case cfg.FirebaseCredentialPath != "":
		if _, err := os.Stat(cfg.FirebaseCredentialPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", cfg.FirebaseCredentialPath)
		}
		logger.Info("Using Firebase service account from file: %s", cfg.FirebaseCredentialPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseCredentialPath)}
	default:
		logger.Info("Using application default credentials")
		return nil
	}
}

func bodyLimit(cfg *config.Config) string {
	total := cfg.MaxUploadSize*int64(cfg.MaxAttachments) + 1<<20
	return strconv.FormatInt(total, 10)
}
