package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-service/config"
	"course-service/internal/api"
	"course-service/internal/broker"
	"course-service/internal/redisclient"
	"course-service/internal/service"
	"course-service/internal/store"
	"course-service/internal/util"
	"course-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting course service")

	tp, err := util.InitTracer("course-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCourse)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	certificateService := service.NewCertificateService(db, eventPublisher)
	enrollmentService := service.NewEnrollmentService(db, redisClient, eventPublisher, cfg.Business.Currency)
	progressService := service.NewProgressService(db, redisClient, eventPublisher, certificateService, cfg.Business.ProgressCacheTTL)
	companyService := service.NewCompanyService(db, redisClient, cfg.Business.InvitationTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	certConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCourse, cfg.Kafka.CertRetryGroup)
	certWorker := worker.NewCertificateWorker(certConsumer, certificateService)
	go func() {
		if err := certWorker.Start(workerCtx); err != nil {
			log.Printf("Certificate worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(enrollmentService, progressService, certificateService, companyService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	certWorker.Stop()

	log.Println("Server exited")
}
