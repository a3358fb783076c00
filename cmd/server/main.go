package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/config"
	"github.com/iliyamo/studyroom-reservation/internal/database"
	"github.com/iliyamo/studyroom-reservation/internal/handler"
	"github.com/iliyamo/studyroom-reservation/internal/logger"
	"github.com/iliyamo/studyroom-reservation/internal/middleware"
	"github.com/iliyamo/studyroom-reservation/internal/queue"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
	"github.com/iliyamo/studyroom-reservation/internal/reservation"
	"github.com/iliyamo/studyroom-reservation/internal/router"
)

// roomStore is what the server needs from a room directory.
type roomStore interface {
	reservation.RoomDirectory
	handler.RoomCatalog
	handler.Importer
}

// reservationStore is what the server needs from a conflict store.
type reservationStore interface {
	reservation.ConflictStore
	handler.ReservationReader
	handler.ReservationAdmin
}

type stores struct {
	rooms        roomStore
	reservations reservationStore
	users        reservation.UserResolver
	reports      handler.Reporter
	db           *sql.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("storage init failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Redis is optional; without it rate limiting and caching are off.
	var rdb *redis.Client
	if cfg.RateLimit.Enabled || cfg.Cache.Enabled {
		rdb, err = config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zl.Warn("redis unavailable, continuing without rate limit and cache",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var events reservation.EventPublisher
	if cfg.Broker.EventsEnabled && cfg.Broker.URL != "" {
		pub := queue.NewPublisher(cfg.Broker.URL, zl)
		defer pub.Close()
		events = pub

		audit := queue.NewAuditLog(cfg.Broker.AuditLogPath)
		go func() {
			if err := queue.StartReservationConsumer(ctx, cfg.Broker.URL, audit, zl); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("reservation consumer stopped", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := reservation.NewService(st.rooms, st.reservations, st.users, events, zl)
	processor := reservation.NewProcessor(svc, reservation.Options{
		MaxQueueDepth:  cfg.Pipeline.MaxQueueDepth,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		Logger:         zl,
		Metrics:        reservation.NewMetrics(reg),
	})
	if err := processor.Start(cfg.Pipeline.Workers); err != nil {
		zl.Fatal("processor start failed", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.EchoMiddleware(zl))

	cache := middleware.NewResponseCache(cfg.Cache, rdb, zl)
	router.RegisterRoutes(e, processor, reg)
	router.RegisterReservations(e,
		handler.NewReservationHandler(processor, svc, cfg.Pipeline.SubmitWait, zl),
		middleware.NewTokenBucket(cfg.RateLimit, rdb, zl))
	router.RegisterRooms(e, handler.NewRoomHandler(st.rooms, st.reservations), cache)
	router.RegisterAdmin(e, handler.NewAdminHandler(st.reservations, st.rooms, st.reports, zl), cache)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Store.Driver),
			zap.Int("workers", cfg.Pipeline.Workers),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	// queued requests are drained after the listener stops accepting
	if err := processor.Shutdown(shutdownCtx); err != nil {
		zl.Warn("processor shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*stores, error) {
	if cfg.Store.Driver == config.StoreMemory {
		rooms := repository.NewMemoryRoomDirectory()
		zl.Info("using in-memory storage; reports are unavailable")
		return &stores{
			rooms:        rooms,
			reservations: repository.NewMemoryConflictStore(),
			users:        repository.NewMemoryUserStore(),
		}, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &stores{
		rooms:        mysqlRooms{RoomRepo: repository.NewRoomRepo(db), ImportRepo: repository.NewImportRepo(db)},
		reservations: repository.NewReservationRepo(db),
		users:        repository.NewUserRepo(db),
		reports:      repository.NewReportRepo(db),
		db:           db,
	}, nil
}

// mysqlRooms joins the room repository with the CSV importer.
type mysqlRooms struct {
	*repository.RoomRepo
	*repository.ImportRepo
}
