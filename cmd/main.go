package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"pixiv-stats/internal/config"
	"pixiv-stats/internal/database"
	"pixiv-stats/internal/handlers"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	config.LoadDotenv()

	db, err := database.Connect(config.DBPath())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	setupGracefulShutdown(db)
	setupServer(db)
}

func setupGracefulShutdown(db *gorm.DB) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Received shutdown signal, gracefully shutting down...")
		database.Close(db)
		log.Println("Shutdown complete")
		os.Exit(0)
	}()
}

func setupServer(db *gorm.DB) {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	dashboardHandler := handlers.NewDashboardHandler(db)
	docsHandler := handlers.NewDocsHandler()

	r.GET("/health", dashboardHandler.HealthCheck)

	// Serve Markdown documentation as HTML
	r.GET("/doc/:doc", docsHandler.ServeMarkdownAsHTML)

	api := r.Group("/api")
	{
		api.GET("/accounts", dashboardHandler.ListAccounts)
		api.GET("/accounts/:id/daily", dashboardHandler.AccountDaily)
		api.GET("/accounts/:id/posts", dashboardHandler.PostsWithLatestSnapshot)
		api.GET("/accounts/:id/posts/:illustID/snapshots", dashboardHandler.PostSnapshots)
		api.GET("/benchmark", dashboardHandler.GrowthBenchmark)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Dashboard server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
