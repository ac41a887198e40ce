package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/catalog"
	"github.com/shandysiswandi/gostage/internal/ingest/dropzone"
	"github.com/shandysiswandi/gostage/internal/ingest/event"
	"github.com/shandysiswandi/gostage/internal/ingest/inbound"
	"github.com/shandysiswandi/gostage/internal/ingest/outbound"
	"github.com/shandysiswandi/gostage/internal/ingest/store"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgconfig"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgrouter"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgroutine"
	"github.com/shandysiswandi/gostage/internal/pkg/pkguid"
)

type Dependency struct {
	Config    pkgconfig.Config
	Goroutine *pkgroutine.Manager
	Router    *pkgrouter.Router
	Context   context.Context
	ID        pkguid.StringID
	// Observer follows uploads; the CLI draws progress bars with it.
	Observer usecase.ProgressObserver
}

// Module is the wired staging session.
type Module struct {
	Usecase *usecase.Usecase
	Notices *event.NoticeLog
	Events  *event.Bus

	consumer *event.NoticeConsumer
}

// New wires the module and registers its HTTP endpoints. The returned closer
// drains pending notices.
func New(dep Dependency) (func(context.Context) error, error) {
	if dep.Router == nil {
		return nil, errors.New("ingest module needs a router")
	}

	m, err := Build(dep)
	if err != nil {
		return nil, err
	}

	inbound.RegisterHTTPEndpoint(dep.Router, m.Usecase, m.Notices, inbound.Config{
		SpoolDir: dep.Config.GetString("ingest.spool_dir"),
	})

	if dep.Config.GetBool("dropzone.enabled") {
		w, err := dropzone.NewWatcher(dropzone.Config{
			Dir:    dep.Config.GetString("dropzone.dir"),
			Settle: dep.Config.GetDuration("dropzone.settle"),
		}, m.Usecase)
		if err != nil {
			_ = m.Close(context.Background())
			return nil, fmt.Errorf("failed to init dropzone: %w", err)
		}

		err = dep.Goroutine.Go(dep.Context, func(ctx context.Context) error {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		if err != nil {
			_ = m.Close(context.Background())
			return nil, fmt.Errorf("failed to start dropzone: %w", err)
		}
	}

	return m.Close, nil
}

// Build wires the session without any HTTP surface.
func Build(dep Dependency) (*Module, error) {
	cfg := dep.Config
	if cfg == nil {
		return nil, errors.New("ingest module needs a config")
	}
	if dep.Goroutine == nil {
		return nil, errors.New("ingest module needs a goroutine manager")
	}
	if dep.Context == nil {
		dep.Context = context.Background()
	}
	if dep.ID == nil {
		dep.ID = pkguid.NewUUID()
	}

	generation, err := pkguid.NewSnowflake()
	if err != nil {
		return nil, fmt.Errorf("failed to init generation ids: %w", err)
	}

	client, err := outbound.NewHTTPClient(outbound.HTTPConfig{
		BaseURL:       cfg.GetString("collaborator.base_url"),
		Timeout:       cfg.GetDuration("collaborator.timeout"),
		UploadTimeout: cfg.GetDuration("collaborator.upload_timeout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init collaborator client: %w", err)
	}

	uploader, err := newUploader(dep.Context, cfg, client)
	if err != nil {
		return nil, err
	}

	limits := usecase.Limits{
		MaxFiles:          int(cfg.GetInt("ingest.max_files")),
		MaxFileBytes:      cfg.GetInt("ingest.max_file_bytes"),
		UploadConcurrency: int(cfg.GetInt("ingest.upload_concurrency")),
	}
	if limits.MaxFiles < 1 {
		limits.MaxFiles = usecase.DefaultMaxFiles
	}
	if limits.MaxFileBytes < 1 {
		limits.MaxFileBytes = usecase.DefaultMaxFileBytes
	}

	bus := event.NewBus(int(cfg.GetInt("events.buffer")))
	notices := event.NewNoticeLog(int(cfg.GetInt("notices.limit")))
	consumer := event.NewNoticeConsumer(bus, event.ConsumerConfig{
		Workers:     int(cfg.GetInt("events.workers")),
		MaxRetries:  int(cfg.GetInt("events.max_retries")),
		BaseBackoff: durationOr(cfg.GetDuration("events.base_backoff"), 200*time.Millisecond),
	}, notices, event.LogHandler{})
	consumer.Start()

	uc := usecase.New(usecase.Dependency{
		Store:    store.NewInMemoryStore(limits.MaxFiles, limits.MaxFileBytes),
		Matcher:  client,
		Detector: client,
		Uploader: uploader,
		Catalog: catalog.New(catalog.Dependency{
			Source: client,
			Events: bus,
			ID:     dep.ID,
			TTL:    cfg.GetDuration("catalog.ttl"),
		}),
		Events:     bus,
		Runner:     dep.Goroutine,
		Observer:   dep.Observer,
		ID:         dep.ID,
		Generation: generation,
		Limits:     limits,
		RootCtx:    dep.Context,
	})

	return &Module{Usecase: uc, Notices: notices, Events: bus, consumer: consumer}, nil
}

// Close drains queued notices.
func (m *Module) Close(ctx context.Context) error {
	return m.consumer.Stop(ctx)
}

func newUploader(ctx context.Context, cfg pkgconfig.Config, client *outbound.HTTPClient) (usecase.Uploader, error) {
	switch kind := strings.ToLower(cfg.GetString("backend.kind")); kind {
	case "", "http":
		return client, nil
	case "s3":
		s3, err := outbound.NewS3Uploader(ctx, outbound.S3Config{
			Region:          cfg.GetString("backend.s3.region"),
			Bucket:          cfg.GetString("backend.s3.bucket"),
			Prefix:          cfg.GetString("backend.s3.prefix"),
			Endpoint:        cfg.GetString("backend.s3.endpoint"),
			UsePathStyle:    cfg.GetBool("backend.s3.use_path_style"),
			AccessKeyID:     cfg.GetString("backend.s3.access_key_id"),
			SecretAccessKey: cfg.GetString("backend.s3.secret_access_key"),
			SessionToken:    cfg.GetString("backend.s3.session_token"),
			UploadTimeout:   cfg.GetDuration("collaborator.upload_timeout"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 backend: %w", err)
		}
		slog.InfoContext(ctx, "uploads go to s3", "bucket", cfg.GetString("backend.s3.bucket"))
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
