package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/totegamma/restoration-forms/internal/config"
	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/database"
	"github.com/totegamma/restoration-forms/internal/infra/gateway"
	"github.com/totegamma/restoration-forms/internal/infra/memory"
	"github.com/totegamma/restoration-forms/internal/infra/repository"
	"github.com/totegamma/restoration-forms/internal/present/rest"
	"github.com/totegamma/restoration-forms/internal/service"
	"github.com/totegamma/restoration-forms/internal/usecase"
)

const serviceName = "formsync"

func setupTraceProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func main() {
	configPath := flag.String("config", "/etc/formsync/config.yaml", "path to the config file")
	inMemory := flag.Bool("memory", false, "serve from an in-process store instead of postgres")
	fixtures := flag.String("fixtures", "", "yaml fixtures to seed the in-process store with")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.Load(*configPath)
	if err != nil {
		if !*inMemory {
			slog.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		conf = config.Default()
	}

	table, err := domain.LoadLinkedFields(conf.Server.LinkedFieldsPath)
	if err != nil {
		slog.Error("failed to load linked fields", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("linked fields loaded", slog.String("version", table.Version), slog.Int("fields", table.Len()))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("failed to flush traces", slog.String("error", err.Error()))
			}
		}()
		e.Use(otelecho.Middleware(serviceName))
	}

	var (
		forms   *usecase.FormUsecase
		signals *service.SignalService
		health  = make(map[string]rest.HealthCheck)
	)
	if *inMemory {
		store := memory.NewStore()
		if *fixtures != "" {
			file, err := os.Open(*fixtures)
			if err != nil {
				slog.Error("failed to open fixtures", slog.String("error", err.Error()))
				os.Exit(1)
			}
			err = store.LoadFixtures(file)
			file.Close()
			if err != nil {
				slog.Error("failed to load fixtures", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}
		forms = usecase.NewFormUsecase(store, store, store, table, usecase.WithConcurrency(conf.Server.Concurrency))
	} else {
		db, err := database.NewPostgres(conf.Server.PostgresDsn)
		if err != nil {
			slog.Error("failed to connect database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := database.MigratePostgres(db); err != nil {
			slog.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		mc := database.NewMemcached(conf.Server.MemcachedAddr)

		signals = service.NewSignalService(rdb)
		forms = usecase.NewFormUsecase(
			repository.NewStore(db),
			gateway.NewFormGateway(repository.NewFormRepository(db)),
			repository.NewEntityRepository(db),
			table,
			usecase.WithConcurrency(conf.Server.Concurrency),
			usecase.WithAnswerCache(gateway.NewAnswerGateway(mc, conf.Server.AnswerCacheTTL)),
			usecase.WithSignal(signals),
		)
		health["postgres"] = database.PingPostgres(db)
		health["redis"] = database.PingRedis(rdb)
		health["memcached"] = database.PingMemcached(mc)
	}

	handler := rest.NewHandler(forms, signals, health)
	handler.RegisterRoutes(e)

	go func() {
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down", slog.String("error", err.Error()))
	}
}
