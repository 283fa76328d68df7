package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-session-service/activity"
	"github.com/jrsteele09/go-session-service/internal/config"
	ledgerpg "github.com/jrsteele09/go-session-service/ledger/postgres"
	"github.com/jrsteele09/go-session-service/reaper"
	"github.com/jrsteele09/go-session-service/rotation"
	"github.com/jrsteele09/go-session-service/server"
	"github.com/jrsteele09/go-session-service/sessions/redisstore"
	"github.com/jrsteele09/go-session-service/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := ledgerpg.NewPool(ctx, &ledgerpg.PoolConfig{ConnString: c.GetPostgresConnString()})
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	if err := ledgerpg.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("ledger migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	secret := c.GetTokenSigningSecret()
	if secret == "" {
		return errors.New("TOKEN_SIGNING_SECRET is required")
	}

	codec := token.NewJWTCodec(
		token.NewHMACSigner(secret),
		token.WithIssuer(c.GetIssuer()),
		token.WithAudience(c.GetAudience()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
	)

	ledgerRepo := ledgerpg.NewLedgerRepo(pool)
	sessionStore := redisstore.New(redisClient)

	engine, err := rotation.NewEngine(
		rotation.Stores{Sessions: sessionStore, Ledger: ledgerRepo},
		codec,
		rotation.WithRefreshTTL(c.GetRefreshTokenExpiry()),
	)
	if err != nil {
		return fmt.Errorf("rotation engine: %w", err)
	}

	detector := activity.NewDetector(ledgerRepo)
	sweeper := reaper.New(ledgerRepo, c.GetReaperInterval())
	go sweeper.Run(ctx)

	srv, err := server.New(c, engine, detector, sweeper)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	cancel()
	returnError = shutdown(httpServer)
	return returnError
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
