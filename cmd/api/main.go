package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/camera"
	"classroll/internal/cloudinary"
	"classroll/internal/config"
	"classroll/internal/handler"
	"classroll/internal/httpmiddleware"
	"classroll/internal/notify"
	"classroll/internal/queue"
	"classroll/internal/recognition"
	"classroll/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("api failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.App) error {
	blobs, err := store.Open(ctx, store.Options{
		Backend:     cfg.StorageBackend,
		DataDir:     cfg.DataDir,
		RedisAddr:   cfg.RedisAddr,
		KeyPrefix:   cfg.KeyPrefix,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer blobs.Close()
	log.Printf("storage backend: %s", cfg.StorageBackend)

	var (
		q      queue.Queue
		inProc bool
	)
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		inProc = true
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Client.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	feed := notify.NewFeed(cfg.FeedSize)
	notifier := notify.Multi{feed, notify.QueueNotifier{Q: q}}

	att, err := attendance.Open(ctx, blobs, attendance.WithNotifier(notifier))
	if err != nil {
		return err
	}

	var (
		cam  camera.Source
		push *camera.PushCamera
	)
	switch cfg.CameraBackend {
	case "http":
		cam = camera.NewHTTPCamera(cfg.CameraURL, cfg.CameraWidth, cfg.CameraHeight)
		log.Printf("camera: network camera at %s", cfg.CameraURL)
	default:
		push = camera.NewPushCamera()
		cam = push
		log.Println("camera: frames pushed by kiosk devices")
	}

	eval := recognition.NewHeuristicEvaluator(recognition.DefaultHeuristicConfig(), nil)
	simCfg := recognition.DefaultConfig()
	simCfg.Interval = cfg.RecognitionTick
	simCfg.MinDwell = cfg.RecognitionDwell
	simCfg.RecognizeProbability = cfg.RecognitionChance
	sim := recognition.New(simCfg, cam, eval, att, notifier, nil)
	defer func() {
		if err := sim.Close(); err != nil {
			log.Printf("camera release failed: %v", err)
		}
	}()
	if cfg.AutoStart {
		if err := sim.Start(ctx); err != nil {
			log.Printf("recognition autostart failed: %v", err)
		}
	}

	deps := handler.Deps{
		Store:      att,
		Simulator:  sim,
		Feed:       feed,
		Notifier:   notifier,
		Push:       push,
		Issuer:     auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		EnrollHash: cfg.EnrollSecretHash,
		MaxUpload:  cfg.MaxUploadBytes,

		DeviceLimit: httpmiddleware.NewSimpleTokenBucket(0, cfg.RateLimitPerMin).GinMiddleware(),
	}
	// Cloudinary client (nil when not configured)
	if cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder); cdn != nil {
		deps.Photos = cdn
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, photos are stored inline")
	}
	if cfg.EnrollSecretHash == "" {
		log.Println("WARNING: DEVICE_ENROLL_SECRET_HASH not set, kiosk enrollment disabled")
	}

	r := newRouter(cfg, handler.New(deps))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if inProc {
		// no worker process can see an in-memory queue, so audit here
		g.Go(func() error {
			return notify.Forward(gctx, q, notify.LogNotifier{})
		})
	}
	g.Go(func() error {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced shutdown: %v", err)
		}
		return nil
	})

	err = g.Wait()
	log.Println("Server exited")
	return err
}

func newRouter(cfg config.App, h *handler.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics", "/api/recognition/status", "/api/notifications"},
	}))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r)

	if _, err := os.Stat(cfg.FrontendDir); err == nil {
		r.StaticFile("/", cfg.FrontendDir+"/index.html")
		r.Static("/static", cfg.FrontendDir+"/static")
	}
	return r
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
