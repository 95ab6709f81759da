package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v76"

	"moodboardAPI/handlers"
	"moodboardAPI/internal/billing"
	"moodboardAPI/middleware"
	"moodboardAPI/services"
)

var (
	dbPool              *pgxpool.Pool
	planTable           *billing.PlanTable
	subscriptionService *services.SubscriptionService
	usageService        *services.UsageService
	repairService       *services.RepairService
	moodboardService    *services.MoodboardService
	generationService   *services.GenerationService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	// Stripe and webhook secrets are re-checked per handler; the server can
	// boot without them but the billing endpoints answer 500.
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		log.Println("Warning: STRIPE_SECRET_KEY not set, billing endpoints will fail")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	planTable = billing.LoadPlanTable()
	subscriptionService = services.NewSubscriptionService(dbPool, planTable)
	usageService = services.NewUsageService(dbPool, subscriptionService)
	repairService = services.NewRepairService(dbPool, planTable)
	moodboardService = services.NewMoodboardService(dbPool)
	generationService = services.NewGenerationService()

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	usageHandler := handlers.NewUsageHandler(usageService)
	webhookHandler := handlers.NewWebhookHandler(subscriptionService)
	adminHandler := handlers.NewAdminHandler(repairService)
	moodboardHandler := handlers.NewMoodboardHandler(moodboardService, generationService, usageService, subscriptionService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "moodboard-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/stripe", webhookHandler.HandleStripeWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// ADMIN ROUTES (REQUIRE X-Admin-Secret HEADER)
	// -------------------------------------------------------------------------
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminSecretMiddleware)
	admin.HandleFunc("/fix-corrupted-subscriptions", adminHandler.FixCorruptedSubscriptions).Methods("POST")
	admin.HandleFunc("/fix-subscription-status", adminHandler.FixSubscriptionStatus).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/subscription/check", subscriptionHandler.CheckSubscription).Methods("POST")
	protected.HandleFunc("/subscription/cancel", subscriptionHandler.CancelSubscription).Methods("POST")
	protected.HandleFunc("/subscription/checkout", subscriptionHandler.CreateCheckout).Methods("POST")

	protected.HandleFunc("/image-usage", usageHandler.HandleImageUsage).Methods("POST")

	protected.HandleFunc("/moodboard/generate", moodboardHandler.GenerateMoodboard).Methods("POST")
	protected.HandleFunc("/moodboard", moodboardHandler.ListMoodboards).Methods("GET")
	protected.HandleFunc("/moodboard/{boardID}", moodboardHandler.DeleteMoodboard).Methods("DELETE")

	protected.HandleFunc("/user/delete-account", moodboardHandler.DeleteAccount).Methods("DELETE")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Admin-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
