package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/app"
	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Собираем хранилища, сессию и подписки
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка инициализации приложения")
	}
	defer a.Close()

	if err := a.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Локальный кэш не загружен, начинаем с пустого состояния")
	}
	go func() {
		confirmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.Session.Confirm(confirmCtx); err != nil {
			log.Warn().Err(err).Msg("Сессия из кэша не подтверждена")
		}
	}()

	// Создаём экземпляр Fiber
	web := fiber.New(fiber.Config{
		AppName:      "SkillSwap API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	web.Use(recover.New())
	web.Use(logger.New())
	web.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Регистрируем маршруты
	a.Routes(web)
	web.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	web.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session": a.Session.State().Status})
	})

	// WebSocket сервер работает на отдельном порту
	wsServer := &http.Server{
		Addr:              ":" + cfg.WebSocketPort,
		Handler:           a.Hub.Handler(a.WebSocketAuth),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.WebSocketPort).Msg("✅ WebSocket сервер запущен")
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Ошибка WebSocket сервера")
			stop()
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("✅ SkillSwap API запущен")
		if err := web.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("Ошибка HTTP сервера")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Останавливаем сервер")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := web.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки WebSocket сервера")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	return c.Status(middleware.StatusOf(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
