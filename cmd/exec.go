package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"training-system/config"
	"training-system/handlers"
	"training-system/internal/gateway/corepay"
	"training-system/internal/hostbridge"
	"training-system/monitoring"
	"training-system/services"
	"training-system/utils"

	_ "training-system/migrations"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote booking/payment backend
	gateway, err := corepay.New(ctx, &cfg.CorePay)
	if err != nil {
		return err
	}

	// Host payment surface bridge
	bridge := hostbridge.New(ctx, &cfg.HostBridge)

	// Initialize services
	recorder := services.NewRedisRecorder(redisClient, cfg.AttemptTTL)
	sessions := services.NewSessionStore(redisClient, cfg.PaymentSessionTTL)
	redemption := services.NewRedemptionService()
	paymentService := services.NewPaymentService(gateway, bridge, recorder, sessions, gateway.Provider())

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, sessions, recorder)
	creditHandler := handlers.NewCreditHandler(app, gateway, redemption, redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitoring.StartMetricsServer(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncCreditSnapshotsToRedis(app, redisClient)

		// Payment endpoints
		e.Router.POST("/api/v1/payments/submit", paymentHandler.SubmitPayment)
		e.Router.GET("/api/v1/payments/{paymentId}", paymentHandler.GetPaymentStatus)
		e.Router.GET("/api/v1/payments/{ref}/attempt", paymentHandler.GetPaymentAttempt)

		// Credit endpoints
		e.Router.GET("/api/v1/credits", creditHandler.GetCredits)
		e.Router.POST("/api/v1/booking/redeem-check", creditHandler.RedeemCheck)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupCreditHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncCreditSnapshotsToRedis warms the credit-holder set on boot so the
// redeem-check endpoint can short-circuit for users with no credits at all.
func syncCreditSnapshotsToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT user_id FROM credits WHERE status = 'ACTIVE'",
	).All(&records); err != nil {
		log.Printf("Error fetching active credits: %v", err)
		return
	}

	redisClient.Del(ctx, "credit_holders")

	if len(records) > 0 {
		var userIDs []interface{}
		for _, record := range records {
			if id := record["user_id"].String; id != "" {
				userIDs = append(userIDs, id)
			}
		}

		if len(userIDs) > 0 {
			redisClient.SAdd(ctx, "credit_holders", userIDs...)
			log.Printf("Synced %d credit holders to Redis", len(userIDs))
		}
	}
}

// setupCreditHooks keeps the credit-holder set in step with the credits
// collection. Redis failures are logged and never block the request.
func setupCreditHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	app.OnRecordCreateRequest("credits").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		userID := e.Record.GetString("user_id")
		if e.Record.GetString("status") == "ACTIVE" {
			if err := redisClient.SAdd(ctx, "credit_holders", userID).Err(); err != nil {
				slog.Error("add credit holder to Redis", "user_id", userID, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordUpdateRequest("credits").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		userID := e.Record.GetString("user_id")
		if e.Record.GetString("status") == "ACTIVE" {
			if err := redisClient.SAdd(ctx, "credit_holders", userID).Err(); err != nil {
				slog.Error("add credit holder to Redis", "user_id", userID, "error", err)
			}
			return e.Next()
		}

		// The user may still hold another active credit, so only drop them
		// when none remain.
		var records []dbx.NullStringMap
		err := app.DB().NewQuery(
			"SELECT id FROM credits WHERE user_id = {:user_id} AND status = 'ACTIVE' AND id != {:id}",
		).Bind(dbx.Params{"user_id": userID, "id": e.Record.Id}).All(&records)
		if err == nil && len(records) == 0 {
			if err := redisClient.SRem(ctx, "credit_holders", userID).Err(); err != nil {
				slog.Error("remove credit holder from Redis", "user_id", userID, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordDeleteRequest("credits").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		userID := e.Record.GetString("user_id")

		var records []dbx.NullStringMap
		err := app.DB().NewQuery(
			"SELECT id FROM credits WHERE user_id = {:user_id} AND status = 'ACTIVE' AND id != {:id}",
		).Bind(dbx.Params{"user_id": userID, "id": e.Record.Id}).All(&records)
		if err == nil && len(records) == 0 {
			if err := redisClient.SRem(ctx, "credit_holders", userID).Err(); err != nil {
				slog.Error("remove credit holder from Redis", "user_id", userID, "error", err)
			}
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
