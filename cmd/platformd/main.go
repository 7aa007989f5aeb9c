package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/internal/auth"
	"github.com/mind-engage/lti-platform/internal/config"
	"github.com/mind-engage/lti-platform/internal/logging"
	"github.com/mind-engage/lti-platform/pkg/platform/admin"
	platform "github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/lti/deeplinking"
	"github.com/mind-engage/lti-platform/pkg/platform/public"
	"github.com/mind-engage/lti-platform/pkg/platform/session"
	"github.com/mind-engage/lti-platform/pkg/platform/shortcode"
	"github.com/mind-engage/lti-platform/pkg/platform/storage"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

func main() {
	configPath := flag.String("config", getenvOr("PLATFORMD_CONFIG", "platformd.yaml"), "config file (yaml or json); missing file falls back to env")
	genKey := flag.Bool("genkey", false, "print a new RSA signing key and its kid, then exit")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password, then exit")
	uninstall := flag.Bool("uninstall", false, "delete every tool document when platform.uninstall is set, then exit")
	flag.Parse()

	switch {
	case *genKey:
		pemKey, kid, err := lti.GenerateSigningKey(2048)
		if err != nil {
			fmt.Fprintln(os.Stderr, "genkey:", err)
			os.Exit(1)
		}
		fmt.Printf("kid: %s\n%s", kid, pemKey)
		return
	case *hashPassword != "":
		h, err := admin.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash-password:", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *uninstall {
		if err := purge(ctx, cfg, logger); err != nil {
			logger.Fatal("uninstall failed", zap.Error(err))
		}
		return
	}

	if err := run(ctx, *configPath, cfg, logger); err != nil {
		logger.Fatal("platformd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, configPath string, cfg *config.Config, logger *zap.Logger) error {
	// --- DB ---
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.Connect(dbCtx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Up(dbCtx, db); err != nil {
		return err
	}

	// --- Platform settings (reloaded from the config source on refresh) ---
	first := true
	settings, err := platform.NewLoadingProvider(func() (platform.Settings, error) {
		if first {
			first = false
			return cfg.Platform, nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			return platform.Settings{}, err
		}
		return c.Platform, nil
	})
	if err != nil {
		return err
	}

	// --- Login state ---
	store, closeStore, err := loginStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeStore()

	tools := tool.NewRegistry(&storage.ToolStore{DB: db}, settings, logger.Named("tools"))
	posts := &storage.PostStore{DB: db}
	states := &lti.LoginStates{Store: store}
	keys := lti.NewKeySource(settings)

	sessions := auth.NewAuthService(cfg.Session.Secret)
	sessions.Cookie = cfg.Session.Cookie
	sessions.TTL = cfg.Session.TTL
	sessions.Secure = cfg.Session.Secure

	crossOrigin := cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.Server.CORSOrigins),
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	})
	jwks := crossOrigin(&lti.JWKSHandler{Provider: keys})

	pub := &public.Server{
		Settings:  settings,
		Tools:     tools,
		Posts:     posts,
		Builder:   &lti.Builder{Settings: settings},
		Platform:  &lti.Platform{Settings: settings, States: states, Logger: logger.Named("launch")},
		JWKS:      jwks,
		StorageJS: crossOrigin(lti.StorageJSHandler{}),
		DeepLinks: &deeplinking.Server{
			Tools:    tools,
			Verifier: &deeplinking.Verifier{Settings: settings, Replay: lti.StoreReplay{Store: store}},
			Logger:   logger.Named("deeplinking"),
		},
		Renderer:    &shortcode.Renderer{Tools: tools, Settings: settings},
		CurrentUser: auth.CurrentUser,
		Logger:      logger.Named("public"),
	}
	pub.Auth = &lti.AuthorizeServer{
		Tools:       tools,
		States:      states,
		Signer:      keys,
		Settings:    settings,
		CurrentUser: auth.CurrentUser,
		OnSent:      pub.TouchLastAccess,
		Logger:      logger.Named("auth"),
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(logger.Named("http")), middleware.Recoverer)
	r.Use(sessions.Session)
	r.Use(pub.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/.well-known/openid-configuration", (&lti.MetadataServer{Settings: settings}).OpenIDConfiguration())
	r.Handle("/.well-known/jwks.json", jwks)

	r.Post("/auth/login", auth.LoginHandler(sessions, auth.Accounts(cfg.Users), logger.Named("session")))
	r.Post("/auth/logout", auth.LogoutHandler(sessions))
	r.Get("/auth/me", auth.MeHandler)

	r.Get("/posts/{id}", pub.RenderPost)

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(admin.BasicAuth(cfg.Admin.User, cfg.Admin.PasswordHash))
		ar.Mount("/", admin.Routes(&admin.API{
			Tools:    tools,
			Settings: settings,
			Posts:    posts,
			Logger:   logger.Named("admin"),
		}))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("site_url", cfg.Platform.SiteURL),
			zap.String("db", db.Driver),
			zap.Bool("redis", cfg.Redis.Enabled()),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// purge removes the platform's tool data.
func purge(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := storage.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Up(ctx, db); err != nil {
		return err
	}
	tools := tool.NewRegistry(&storage.ToolStore{DB: db}, platform.NewProvider(cfg.Platform), logger.Named("tools"))
	n, err := tools.Purge(ctx)
	if err != nil {
		return err
	}
	logger.Info("uninstalled", zap.Int("tools", n))
	return nil
}

// loginStore returns the Redis store when an address is configured, the
// in-memory store otherwise.
func loginStore(ctx context.Context, rc config.RedisConfig) (session.Store, func(), error) {
	if !rc.Enabled() {
		return session.NewMemoryStore(), func() {}, nil
	}
	client, err := session.NewRedisClient(ctx, session.RedisOptions{
		Mode:       rc.Mode,
		Addrs:      rc.Addresses(),
		MasterName: rc.MasterName,
		Password:   rc.Password,
		DB:         rc.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return session.NewRedisStore(client, rc.Prefix), func() { _ = client.Close() }, nil
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func getenvOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
