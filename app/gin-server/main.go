package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yoockh/medivoice/config"
	"github.com/yoockh/medivoice/internal/api/handlers"
	"github.com/yoockh/medivoice/internal/api/middleware"
	"github.com/yoockh/medivoice/internal/api/routes"
	"github.com/yoockh/medivoice/internal/cache"
	"github.com/yoockh/medivoice/internal/call"
	"github.com/yoockh/medivoice/internal/logger"
	"github.com/yoockh/medivoice/internal/notify"
	"github.com/yoockh/medivoice/internal/providers/llm"
	"github.com/yoockh/medivoice/internal/providers/stt"
	"github.com/yoockh/medivoice/internal/providers/tts"
	"github.com/yoockh/medivoice/internal/report"
	mongorepo "github.com/yoockh/medivoice/internal/repositories/mongo"
	pgrepo "github.com/yoockh/medivoice/internal/repositories/postgres"
	"github.com/yoockh/medivoice/internal/services"
	"github.com/yoockh/medivoice/internal/storage"
	"github.com/yoockh/medivoice/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if cfg.OpenAIKey == "" {
		log.Fatal("OPENAI_API_KEY is required for speech synthesis")
	}

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	// report history is optional; without it /history answers UNAVAILABLE
	var reportRepo pgrepo.ReportRepo
	if os.Getenv("POSTGRES_URI") != "" {
		if err := config.InitPostgres(log); err != nil {
			log.WithError(err).Fatal("PostgreSQL init error")
		}
		if err := config.EnsurePostgresSchema(); err != nil {
			log.WithError(err).Fatal("PostgreSQL schema error")
		}
		reportRepo = pgrepo.NewReportRepo(config.PostgresDB)
		log.Info("PostgreSQL connected")
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	recognizer, err := stt.NewGoogleSpeech(rootCtx, cfg.GoogleCredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("speech recognizer init error")
	}
	defer recognizer.Close()

	inference, err := newInference(rootCtx, cfg)
	if err != nil {
		log.WithError(err).Fatal("inference init error")
	}
	defer inference.Close()

	synth := tts.NewOpenAISpeech(cfg.OpenAIKey, cfg.TTSBaseURL, cfg.TTSModel)

	sessionRepo := mongorepo.NewSessionRepo(config.MongoClient.Database(config.MongoDBName()))
	events := notify.NewRedisPublisher(config.RedisClient)

	var archive services.ArchiveQueue
	if cfg.ArchiveBucket != "" {
		uploader, err := storage.NewGCSUploader(rootCtx, cfg.ArchiveBucket, cfg.GoogleCredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer uploader.Close()

		pool := &workers.ArchiveWorkerPool{
			Redis:      config.RedisClient,
			Sessions:   sessionRepo,
			Uploader:   uploader,
			Publisher:  events,
			NumWorkers: cfg.ArchiveWorkers,
			Logger:     log,
		}
		if err := pool.Start(rootCtx); err != nil {
			log.WithError(err).Fatal("archive workers")
		}
		archive = workers.RedisArchiveQueue{Redis: config.RedisClient}
		log.WithField("bucket", cfg.ArchiveBucket).Info("report archive enabled")
	}

	sessionSvc := services.NewSessionService(sessionRepo)
	reportSvc := services.NewReportService(sessionRepo, reportRepo,
		cache.NewRedisCache(config.RedisClient, "medivoice:"), archive, cfg.ReportCacheTTL, log)
	exporter := report.NewExporter(inference, reportSvc, log)

	callSvc := services.NewCallService(services.CallDeps{
		Sessions:    sessionSvc,
		Turns:       sessionRepo,
		Recognizer:  recognizer,
		Synthesizer: synth,
		Inference:   inference,
		Exporter:    exporter,
		Publisher:   events,
		Log:         log,
		Settings: services.CallSettings{
			NoSpeechTimeout:  cfg.NoSpeechTimeout,
			InferenceTimeout: cfg.InferenceTimeout,
			ExportTimeout:    cfg.ReportTimeout,
			PaceSpeech:       cfg.PaceSpeech,
			Recognition: call.RecognitionOptions{
				Config: stt.Config{
					Language:     cfg.STTLanguage,
					SampleRateHz: cfg.STTSampleRate,
					Model:        cfg.STTModel,
				},
				Debounce:    cfg.RecognitionDebounce,
				OpenTimeout: cfg.RecognitionOpenTimeout,
			},
		},
	})

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Auth:    middleware.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience},
		Session: handlers.NewSessionHandler(sessionSvc, callSvc),
		Report:  handlers.NewReportHandler(reportSvc),
		WS:      handlers.NewWSHandler(callSvc, events, log, cfg.WSAllowedOrigins),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// hijacked call sockets are not tracked by Shutdown; end the calls first
	// so their reports are exported
	callSvc.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	stopRoot()

	if err := config.ClosePostgres(); err != nil {
		log.WithError(err).Warn("postgres close")
	}
	if err := config.CloseMongo(ctx); err != nil {
		log.WithError(err).Warn("mongo close")
	}
	if err := config.RedisClient.Close(); err != nil {
		log.WithError(err).Warn("redis close")
	}
	log.Info("bye")
}

func newInference(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	if cfg.InferenceProvider == "vertex" {
		return llm.NewVertexGemini(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel, cfg.GoogleCredentialsFile)
	}
	return llm.NewOpenAICompat(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
}
