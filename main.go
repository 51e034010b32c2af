package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/inkwell/internal/config"
	"github.com/debemdeboas/inkwell/internal/db"
	"github.com/debemdeboas/inkwell/internal/draftcache"
	"github.com/debemdeboas/inkwell/internal/editor"
	"github.com/debemdeboas/inkwell/internal/imaging"
	"github.com/debemdeboas/inkwell/internal/logger"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/pipeline"
	"github.com/debemdeboas/inkwell/internal/render"
	"github.com/debemdeboas/inkwell/internal/repository"
	"github.com/debemdeboas/inkwell/internal/routes"
	"github.com/debemdeboas/inkwell/internal/sse"
	"github.com/debemdeboas/inkwell/internal/upload"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

var log zerolog.Logger

func setLoggers(l zerolog.Logger) {
	log = l
	config.SetLogger(l.With().Str("component", "config").Logger())
	db.SetLogger(l.With().Str("component", "db").Logger())
	draftcache.SetLogger(l.With().Str("component", "draftcache").Logger())
	editor.SetLogger(l.With().Str("component", "editor").Logger())
	pipeline.SetLogger(l.With().Str("component", "pipeline").Logger())
	render.SetLogger(l.With().Str("component", "render").Logger())
	repository.SetLogger(l.With().Str("component", "repository").Logger())
	sse.SetLogger(l.With().Str("component", "sse").Logger())
	upload.SetLogger(l.With().Str("component", "upload").Logger())
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	setLoggers(logger.New(os.Getenv("LOG_LEVEL")))
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg := config.AppConfig
	if os.Getenv("LOG_LEVEL") == "" {
		setLoggers(logger.New(cfg.Logging.Level))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	database := db.NewSQLite(cfg.Database.Path)
	if err := database.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	store, err := openDraftStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	uploader, err := newUploader(ctx, cfg.Upload)
	if err != nil {
		return err
	}

	clients := sse.NewSSEClients()
	articles := repository.NewDBArticleRepository(database)
	articles.SetSaveNotifier(func(id model.ArticleID) {
		log.Debug().Str("article_id", string(id)).Msg("Article stored")
	})

	manager := editor.NewManager(editor.Deps{
		Store:    store,
		Uploader: uploader,
		Saver:    articles,
		Renderer: render.New(cfg.Editor.RenderEngine, cfg.Editor.SyntaxTheme),
		Previews: editor.NewPreviews(routes.PreviewPrefix),
		Pipeline: pipeline.Options{
			Compress: cfg.Images.Compress,
			Image: imaging.Options{
				Quality:      cfg.Images.Quality,
				MaxDimension: cfg.Images.MaxDimension,
			},
			Purpose: upload.PurposeArticleImage,
		},
		DismissAfter: cfg.Editor.DismissAfter,
		Notify:       broadcastStatus(clients),
	}, articles)

	autosaver := editor.NewAutoSaver(manager, cfg.Editor.AutosaveInterval)
	autosaver.Start(ctx)
	defer autosaver.Stop()

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: newMux(manager, articles, clients, cfg.Editor.MaxUploadBytes),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down server")
	}
	// Unsaved edits land in the draft cache.
	if err := manager.CloseAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error closing editor sessions")
	}
	return nil
}

func openDraftStore(cfg config.CacheConfig) (*draftcache.Store, error) {
	compressor, err := compression.New(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var kv draftcache.KV
	switch cfg.Backend {
	case config.CacheMemory:
		kv = draftcache.NewMemoryKV()
	default:
		if kv, err = draftcache.OpenBadger(cfg.Path); err != nil {
			return nil, fmt.Errorf("failed to open draft cache: %w", err)
		}
	}
	log.Info().Str("backend", cfg.Backend).Str("compression", compressor.Name()).Msg("Draft cache ready")
	return draftcache.NewStore(kv, compressor), nil
}

func newUploader(ctx context.Context, cfg config.UploadConfig) (upload.Uploader, error) {
	switch cfg.Backend {
	case config.UploadHTTP:
		return upload.NewHTTPUploader(cfg.HTTP.Endpoint, cfg.HTTP.Token, cfg.HTTP.Timeout), nil
	default:
		u, err := upload.NewS3Uploader(ctx, upload.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 uploader: %w", err)
		}
		return u, nil
	}
}

// broadcastStatus forwards state transitions to SSE clients watching the
// draft.
func broadcastStatus(clients *sse.SSEClients) func(model.DraftKey, editor.Status) {
	return func(key model.DraftKey, status editor.Status) {
		msg, err := json.Marshal(status)
		if err != nil {
			log.Error().Err(err).Str("draft_key", string(key)).Msg("Error encoding status")
			return
		}
		clients.Broadcast(string(key), string(msg))
	}
}

type articleLister interface {
	GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error)
	ListArticles(ctx context.Context) ([]model.Article, error)
}

func newMux(manager *editor.Manager, articles articleLister, clients *sse.SSEClients, maxUploadBytes int64) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+routes.RobotsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, config.CTypeText)
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	mux.HandleFunc("GET "+routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, config.CTypeText)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET "+routes.SSEPath, clients.Handler)

	mux.HandleFunc("GET "+routes.APIArticles, func(w http.ResponseWriter, r *http.Request) {
		list, err := articles.ListArticles(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Error listing articles")
			http.Error(w, "Error listing articles", http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	})
	mux.HandleFunc("GET "+routes.APIArticle, func(w http.ResponseWriter, r *http.Request) {
		a, err := articles.GetArticle(r.Context(), model.ArticleID(r.PathValue("id")))
		if errors.Is(err, model.ErrArticleNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Error reading article")
			http.Error(w, "Error reading article", http.StatusInternalServerError)
			return
		}
		writeJSON(w, a)
	})

	editor.NewHandler(manager, maxUploadBytes).Register(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routes.RobotsPath {
			mux.ServeHTTP(w, r)
			return
		}
		secureHeaders(mux.ServeHTTP)(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set(config.HCacheControl, "no-store")

		h(w, r)
	}
}
