package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/feed"
	"github.com/anonto42/nano-midea/livechat/internal/middleware"
	"github.com/anonto42/nano-midea/livechat/internal/render"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/anonto42/nano-midea/livechat/internal/router"
	"github.com/anonto42/nano-midea/livechat/pkg/config"
	"github.com/anonto42/nano-midea/livechat/pkg/firebase"
	"github.com/anonto42/nano-midea/livechat/validators"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// backend is the remote store selected by configuration
type backend struct {
	messages repositories.MessageRepository
	assets   repositories.AssetRepository
	reader   repositories.AssetReader
}

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()
	defer glog.Flush()

	if err := run(*configPath); err != nil {
		glog.Errorf("[main]%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	var fb *firebase.App
	if cfg.NeedsFirebase() {
		fb, err = firebase.InitFirebase(ctx, firebase.Options{
			CredentialsPath: cfg.Firebase.CredentialsPath,
			StorageBucket:   cfg.Firebase.StorageBucket,
			Firestore:       cfg.Feed.Backend == config.BackendFirestore,
		})
		if err != nil {
			return err
		}
		defer fb.Close()
	}

	be, err := openBackend(cfg, db, fb)
	if err != nil {
		return err
	}

	var failures repositories.FailureRepository = repositories.LogFailureRepository{}
	var journal repositories.FailureJournal
	if db.Postgres != nil {
		pg := repositories.NewPostgresFailureRepository(db.Postgres)
		failures, journal = pg, pg
	}

	hub := render.NewHub()
	defer hub.Close()
	reconciler := feed.NewReconciler(feed.NewStore(), hub)
	loop := feed.NewLoop(reconciler)
	lifecycle := feed.NewLifecycle(be.messages, be.assets, failures, reconciler, loop)

	changes, err := be.messages.Subscribe(ctx, cfg.Feed.WindowSize)
	if err != nil {
		return err
	}

	var verifier middleware.TokenVerifier
	if fb != nil {
		verifier = fb.AuthClient
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)
	router.SetupRoutes(e, router.Deps{
		Backend:   cfg.Feed.Backend,
		AuthMode:  cfg.Auth.Mode,
		JWTSecret: cfg.Auth.JWTSecret,
		Verifier:  verifier,
		Lifecycle: lifecycle,
		Feed:      loop,
		Hub:       hub,
		Assets:    be.reader,
		Failures:  journal,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, changes)
	})
	g.Go(func() error {
		glog.Infof("[main]listening on :%s (backend=%s)\n", cfg.Port, cfg.Feed.Backend)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// uploads already started still finalize
	lifecycle.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openBackend(cfg *config.Config, db *config.DB, fb *firebase.App) (backend, error) {
	switch cfg.Feed.Backend {
	case config.BackendFirestore:
		return backend{
			messages: repositories.NewFirestoreMessageRepository(fb.Firestore, cfg.Feed.Collection),
			assets:   repositories.NewStorageAssetRepository(fb.Bucket),
		}, nil
	case config.BackendMongo:
		mdb := db.Mongo.Database(cfg.Mongo.Database)
		assets, err := repositories.NewGridFSAssetRepository(mdb, cfg.PublicBaseURL)
		if err != nil {
			return backend{}, err
		}
		return backend{
			messages: repositories.NewMongoMessageRepository(mdb, cfg.Feed.Collection),
			assets:   assets,
			reader:   assets,
		}, nil
	default:
		assets := repositories.NewMemoryAssetRepository().WithBaseURL(cfg.PublicBaseURL)
		return backend{
			messages: repositories.NewMemoryMessageRepository(),
			assets:   assets,
			reader:   assets,
		}, nil
	}
}
