package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/pkg/utilities"
)

const defaultAddr = "0.0.0.0:8431"

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init db
	dbCfg := database.ConfigFromEnv()
	db, err := database.ConnectX(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.DB); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	authCfg := auth.ConfigFromEnv()
	if len(authCfg.Secret) == 0 {
		secret, err := auth.GenerateSecret()
		if err != nil {
			sugar.Fatalf("auth secret: %v", err)
		}
		authCfg.Secret = secret
		sugar.Warn("AUTH_SECRET not set; using a random secret, sessions will not survive a restart")
	}
	if err := authCfg.Validate(); err != nil {
		sugar.Fatalf("auth config: %v", err)
	}

	store := user.NewStore(db, nil, nil, dbCfg.Timeout)
	codec, err := auth.NewCodec(authCfg.Secret, authCfg.TokenTTL)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}
	authn := auth.NewAuthenticator(codec, auth.NewValidator(store))
	exemptions := auth.NewExemptions(authCfg.ExemptPrefixes...)
	gw := auth.NewGateway(authn, exemptions, authCfg.Header, sugar)
	authHandler := auth.NewHandler(auth.NewService(store, codec, sugar), sugar)

	sugar.Infow("gateway configured",
		"header", authCfg.Header,
		"exempt", exemptions.Prefixes(),
		"token_ttl", authCfg.TokenTTL.String(),
	)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.RegisterRoutes(sugar, gw, authHandler, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
