package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raisu/cfg"
	"raisu/pkg/kms"
	"raisu/pkg/pipeline"
	"raisu/pkg/wire"
	"raisu/svc/api"
	"raisu/svc/auth"
	"raisu/svc/cache"
	"raisu/svc/db"
	"raisu/svc/fetch"
	"raisu/svc/lim"
	"raisu/svc/svc"
	"raisu/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthCheck())
	}

	if err := cfg.LoadDotEnv(); err != nil {
		util.Fatal().Err(err).Msg("failed to load env file")
	}
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("environment", c.Environment).Msg("starting raisu")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	codec, err := wire.ParseCodec(c.WireFormat)
	if err != nil {
		util.Fatal().Err(err).Msg("invalid wire format")
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(ctx, db.RedisOptions{
			URL:      c.RedisURL,
			TLS:      c.RedisTLS,
			Username: c.RedisUsername,
			Password: c.RedisPassword.Value(),
			Timeout:  c.RedisTimeout,
		})
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis required in production")
			}
			util.Warn().Err(err).Msg("redis unavailable, running with local cache only")
			rdb = nil
		} else {
			util.Info().Msg("redis connected")
			defer rdb.Close()
		}
	}
	// Typed nils must not leak into the optional interfaces below.
	var (
		shared  fetch.Shared
		evicter svc.Evicter
		window  lim.Window
		cachePg api.Pinger
	)
	if rdb != nil {
		shared, evicter, window, cachePg = rdb, rdb, rdb, rdb
	}

	deps := api.Deps{Cache: cachePg}
	var (
		pasteSvc *svc.Paste
		sqlDB    *db.SQLite
		hasher   *auth.Hasher
		clients  *util.ClientHasher
	)
	var workers []func()

	if c.PastesEnabled {
		adapter, err := kms.NewAdapter(ctx, kmsConfig(c.KMS))
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize KMS adapter")
		}
		pepper, err := loadPepper(ctx, c, adapter)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to load pepper")
		}
		tokens, err := loadDeletionTokens(ctx, c, adapter)
		if err != nil {
			util.Wipe(pepper)
			util.Fatal().Err(err).Msg("failed to init deletion tokens")
		}
		defer tokens.Wipe()
		if rdb != nil {
			tokens.SetTracker(rdb)
			util.Info().Msg("deletion token replay tracking enabled")
		}

		sqlDB, err = db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			util.Wipe(pepper)
			util.Fatal().Err(err).Msg("failed to initialize database")
		}
		defer sqlDB.Close()
		util.Info().Str("path", c.DatabasePath).Msg("database initialized")

		hasher, err = auth.NewHasher(c.Argon2Time, c.Argon2Memory, c.Argon2Parallelism, pepper)
		if err != nil {
			util.Wipe(pepper)
			util.Fatal().Err(err).Msg("failed to initialize hasher")
		}
		if err := hasher.Start(c.HasherWorkerCount); err != nil {
			util.Fatal().Err(err).Msg("failed to start hasher")
		}
		defer hasher.Stop()

		clients, err = util.NewClientHasher(pepper, c.ClientHashRotation)
		util.Wipe(pepper)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize client hasher")
		}
		defer clients.Stop()

		pasteSvc, err = svc.NewPaste(sqlDB, hasher, tokens, adapter, c)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize paste service")
		}
		pasteSvc.SetEvicters(lruCache, evicter)
		util.Info().Int("workers", c.WorkerPoolSize).Msg("paste service initialized")

		deps.Paste = pasteSvc
		deps.Hasher = clients
		deps.DB = sqlDB

		bg, stop := context.WithCancel(ctx)
		walDone := make(chan struct{})
		go func() {
			defer close(walDone)
			db.RunWALMaintenance(bg, sqlDB.DB(), 0)
		}()
		go svc.RunCleaner(bg, sqlDB, 10*time.Minute)
		workers = append(workers, func() {
			stop()
			select {
			case <-walDone:
			case <-time.After(15 * time.Second):
				util.Warn().Msg("WAL maintenance did not stop in time")
			}
		})
	}

	fetcher := fetch.NewCached(fetch.NewHTTP(fetch.Config{
		PastesDevURL: c.Fetch.PastesDevURL,
		HastebinURL:  c.Fetch.HastebinURL,
		SelfURL:      c.Fetch.SelfPasteURL,
		Timeout:      c.Fetch.Timeout,
		MaxBytes:     c.Fetch.MaxBytes,
	}), lruCache, shared, c.Fetch.CacheTTL)
	deps.Viewer = svc.NewViewer(fetcher, pipeline.Options{Codec: codec, MaxDepth: c.MaxDepth}, c.ContextTimeout)

	var keyer lim.Keyer
	if clients != nil {
		keyer = clients
	}
	limiter, err := lim.New(lim.Options{
		RPM:               c.RateLimit.RPM,
		Burst:             c.RateLimit.Burst,
		ConservativeLimit: c.RateLimit.ConservativeLimit,
		TrustedProxies:    c.TrustedProxies,
	}, window, keyer)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize rate limiter")
	}
	defer limiter.Stop()
	deps.Limiter = limiter
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Bool("shared_window", window != nil).
		Msg("rate limiter initialized")

	server := api.NewServer(c, deps)
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	for _, stop := range workers {
		stop()
	}
	if pasteSvc != nil {
		pasteSvc.Shutdown()
	}
	util.Info().Msg("shutdown complete")
}

// healthCheck backs the container probe: it only checks that the paste
// database opens and answers.
func healthCheck() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "raisu.db"
	}
	sqlDB, err := db.NewSQLite(dbPath)
	if err != nil {
		return 1
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(ctx); err != nil {
		return 1
	}
	return 0
}

func kmsConfig(k cfg.KMSCfg) kms.Config {
	token := k.VaultToken.Value()
	return kms.Config{
		VaultAddr:       k.VaultAddr,
		VaultToken:      token,
		VaultTokenFile:  k.VaultTokenFile,
		VaultMountPath:  k.VaultMountPath,
		VaultKeyID:      k.VaultKeyID,
		VaultSecretPath: k.VaultSecretPath,
		AWSRegion:       k.AWSRegion,
		AWSKeyID:        k.AWSKeyID,
		LocalKey:        k.LocalKey.Value(),
		RequirePrimary:  k.RequirePrimary,
		FailClosed:      k.FailClosed,
	}
}

func loadPepper(ctx context.Context, c *cfg.Cfg, adapter *kms.Adapter) ([]byte, error) {
	if !c.PepperFromKMS {
		p := make([]byte, len(c.Pepper.Bytes()))
		copy(p, c.Pepper.Bytes())
		return p, nil
	}
	b64, err := adapter.GetSecret(ctx, "ARGON2_PEPPER")
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(b64)
}

func loadDeletionTokens(ctx context.Context, c *cfg.Cfg, adapter *kms.Adapter) (*util.DeletionTokens, error) {
	b64, err := adapter.GetSecret(ctx, c.KMS.TokenSecretName)
	if err != nil {
		return nil, err
	}
	secret, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	defer util.Wipe(secret)
	return util.NewDeletionTokens(secret, c.TokenReplayTTL)
}
