package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"permission-service/internal/config"
	"permission-service/internal/database/mongo"
	"permission-service/internal/events"
	"permission-service/internal/handlers"
	"permission-service/internal/middleware"
	"permission-service/internal/repository"
	"permission-service/internal/service"
	"permission-service/pkg/discovery"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/var", "log", "permission_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.ServiceConfig
	store := repository.NewStore(repository.Repositories_instance)

	var permCache service.PermissionCache
	if os.Getenv("REDIS_ADDR") != "" {
		permCache = service.NewRedisPermissionCache(repository.Repositories_instance.RedisRepository, cfg.CacheTTL)
	} else {
		log.Println("REDIS_ADDR not set, using in-process permission cache")
		permCache = service.NewMemoryPermissionCache(cfg.CacheTTL)
	}

	publisher, err := events.NewEventPublisher(cfg.RabbitMQURI())
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	coalescer := service.NewCoalescer(publisher, repository.Repositories_instance.RedisRepository, cfg.PublishDelay, cfg.DedupWindow)
	go coalescer.Run()

	resolver := service.NewPermissionResolver(store)
	abilityService := service.NewAbilityService(store, resolver)
	guard := middleware.NewGuard(resolver, permCache, abilityService, store.Resources)
	grantService := service.NewGrantService(store, permCache, coalescer)

	consumer, err := events.NewEventConsumer(cfg.RabbitMQURI(), permCache, coalescer, store.Resources)
	if err != nil {
		log.Fatalf("Failed to initialize event consumer: %v", err)
	}

	app := fiber.New(fiber.Config{})
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)
	app.Use(auth.Principal())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(200).SendString("OK")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.NewGrantHandler(grantService, abilityService, guard, store).RegisterRoutes(app)
	handlers.NewDocumentHandler(store, permCache, coalescer, guard).RegisterRoutes(app)

	// Every guarded route must have a complete, resolvable policy
	// before traffic is accepted.
	if err := guard.CheckPolicies(); err != nil {
		log.Fatalf("Policy check failed: %v", err)
	}

	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start event consumer: %v", err)
	}

	if err := discovery.ServiceDiscovery.Register(); err != nil {
		log.Printf("Warning: Consul registration failed: %v", err)
	}

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	if err := discovery.ServiceDiscovery.Deregister(); err != nil {
		log.Printf("Error deregistering from Consul: %v", err)
	}

	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	if err := consumer.Close(); err != nil {
		log.Printf("Error closing event consumer: %v", err)
	}

	// Stop flushes pending notifications before the publisher goes away.
	coalescer.Stop()

	if err := publisher.Close(); err != nil {
		log.Printf("Error closing event publisher: %v", err)
	}

	mongo.DisconnectMongo()

	<-doneChan
	log.Println("Server exited, goodbye!")
}
