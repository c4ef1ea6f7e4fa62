package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"backend-klinik/internal/cache"
	"backend-klinik/internal/config"
	"backend-klinik/internal/helper"
	"backend-klinik/internal/http/handler"
	"backend-klinik/internal/http/middleware"
	"backend-klinik/internal/queue"
	"backend-klinik/internal/realtime"
	"backend-klinik/internal/store"
	"backend-klinik/internal/syncq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()

	// Semua handle dibangun di sini dan di-pass eksplisit, tidak ada
	// singleton proses.
	var st store.Store
	if config.GetEnv("STORE_DRIVER", "mysql") == "memory" {
		log.Println("[main] STORE_DRIVER=memory, data tidak persisten")
		st = store.NewMemoryStore()
	} else {
		db, err := config.NewDB()
		if err != nil {
			log.Fatal("MySQL tidak nyambung:", err)
		}
		defer db.Close()
		st = store.NewMySQLStore(db)
	}

	rdb := config.NewRedis() // nil kalau Redis down; cache jadi pass-through
	if rdb != nil {
		defer rdb.Close()
	}

	ca := cache.New(rdb)
	engine := syncq.NewEngine(rdb, st,
		config.GetEnvInt("SYNC_BATCH", syncq.DefaultBatch),
		config.GetEnvDuration("SYNC_INTERVAL", syncq.DefaultInterval),
	)
	hub := realtime.NewHub()

	svc := queue.NewService(st, ca, engine, hub, helper.ClinicLocation(),
		config.GetEnvBool("QUEUE_WRITE_BEHIND", false))
	h := handler.New(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go engine.Run(ctx)

	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Antrian klinik API jalan",
		})
	})

	// Display publik: ringkasan + websocket per queue.
	app.Get("/api/queues/summary", h.GetSummary)
	app.Get("/ws/queues/:id", websocket.New(realtime.ServeQueue(hub)))

	// Semua operasi lain wajib login.
	api := app.Group("/api", middleware.JWTAuth())

	api.Post("/queues/open", h.OpenToday)
	api.Get("/queues/:id", h.GetSnapshot)
	api.Get("/queues/:id/current", h.GetCurrent)
	api.Get("/queues/:id/waiting-count", h.GetWaitingCount)
	api.Post("/queues/:id/tokens", h.Admit)

	// Operasi konsultasi dan lifecycle hanya untuk staf.
	staff := middleware.RoleAuth("staff", "doctor")
	api.Post("/queues/:id/call-next", staff, h.CallNext)
	api.Post("/queues/:id/start", staff, h.Start)
	api.Post("/queues/:id/complete", staff, h.Complete)
	api.Post("/queues/:id/pause", staff, h.Pause)
	api.Post("/queues/:id/resume", staff, h.Resume)
	api.Post("/queues/:id/close", staff, h.Close)
	api.Post("/queues/:id/reopen", staff, h.Reopen)

	api.Post("/tokens/:id/skip", staff, h.Skip)
	api.Post("/tokens/:id/no-show", staff, h.MarkNoShow)
	api.Post("/tokens/:id/readd", staff, h.Readd)
	api.Post("/tokens/:id/cancel", staff, h.Cancel)

	addr := config.GetEnv("APP_HOST", "") + ":" + config.GetEnv("APP_PORT", "8080")
	go func() {
		log.Println("Server jalan di", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("[main] shutdown: tutup server, drain sync queue")
	_ = app.ShutdownWithTimeout(10 * time.Second)

	// Mutasi tertunda dihabiskan sebelum proses keluar.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Drain(drainCtx); err != nil {
		log.Println("[main] drain sync queue gagal:", err)
	}
}
