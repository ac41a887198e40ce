package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"
	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgrouter"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgroutine"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
	"github.com/shandysiswandi/gostage/internal/pkg/pkguid"
)

func (a *App) initConfig() {
	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", a.config.GetString("tz"))
}

func (a *App) initLibraries() {
	a.goroutine = pkgroutine.NewManager(100)
	a.uuid = pkguid.NewUUID()

	if !a.config.GetBool("telemetry.enabled") {
		return
	}

	shutdown, err := pkgtrace.Init(a.ctx, pkgtrace.Config{
		Endpoint:       a.config.GetString("telemetry.endpoint"),
		ServiceName:    pkglog.ServiceName,
		ServiceVersion: a.config.GetString("telemetry.service_version"),
		Insecure:       a.config.GetBool("telemetry.insecure"),
		Headers:        a.config.GetMap("telemetry.headers"),
		SamplingRatio:  a.config.GetFloat("telemetry.sampling_ratio"),
	})
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	a.addCloser("Tracer", shutdown)
}

func (a *App) initHTTPServer() {
	a.router = pkgrouter.NewRouter(a.uuid)

	origins := a.config.GetArray("server.cors.allowed_origins")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			pkgrouter.HeaderCorrelationID,
		},
		AllowCredentials: true,
	})

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("server.address.http"),
		Handler:           corsHandler.Handler(a.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

//nolint:unparam // is always nil
func (a *App) initClosers() {
	a.addCloser("HTTP Server", func(ctx context.Context) error {
		return a.httpServer.Shutdown(ctx)
	})
	a.addCloser("Config", func(context.Context) error {
		return a.config.Close()
	})
}
