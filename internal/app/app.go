package app

import (
	"context"
	"net/http"

	"github.com/shandysiswandi/gostage/internal/pkg/pkgconfig"
	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgrouter"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgroutine"
	"github.com/shandysiswandi/gostage/internal/pkg/pkguid"
)

type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config pkgconfig.Config

	// libraries
	uuid      pkguid.StringID
	goroutine *pkgroutine.Manager

	// server
	router     *pkgrouter.Router
	httpServer *http.Server

	// closers run in reverse registration order on Stop
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New builds the HTTP service from an already loaded config.
func New(cfg pkgconfig.Config) *App {
	pkglog.InitLogging(cfg.GetString("log.level"))

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
		config: cfg,
	}

	app.initConfig()
	app.initLibraries()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
