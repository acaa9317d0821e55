package main

import (
	"context"
	"log"
	"os"

	_ "costseg/api/swagger" // swagger docs
	"costseg/internal/database"
	"costseg/internal/export"
	"costseg/internal/handler"
	"costseg/internal/middleware"
	"costseg/internal/model"
	"costseg/internal/pipeline"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/internal/service"
	"costseg/internal/storage"
	"costseg/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Cost Segregation Study API
// @version         1.0
// @description     Backend for cost segregation study workflows: studies, assets, takeoffs, exports and the external analysis pipeline.
// @host            localhost:8080
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	studyRepo, err := repository.NewStudyRepository(db)
	if err != nil {
		log.Fatalf("Study repository setup failed: %v", err)
	}
	draftRepo, err := repository.NewDraftRepository(db)
	if err != nil {
		log.Fatalf("Draft repository setup failed: %v", err)
	}
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	// Study feed: subscribers get the current snapshot on attach, then every
	// committed write.
	broker := pubsub.NewBroker(func(ctx context.Context, id uuid.UUID) (*model.Study, error) {
		return studyRepo.FindByID(ctx, id)
	})
	defer broker.Close()

	// Set up WebSocket Hub fed by the broker
	wsHub := websocket.NewHub()
	wsHub.AttachBroker(broker)
	go wsHub.Run()

	// Blob storage is optional in dev; uploads and exports report not
	// configured until STUDY_GCS_BUCKET is set.
	var blobs storage.BlobStore
	if gcs, err := storage.NewGCSStore(context.Background()); err != nil {
		log.Println("Blob storage disabled:", err)
	} else {
		blobs = gcs
		defer gcs.Close()
	}

	// External classification pipeline, also optional.
	var pipelineClient *pipeline.Client
	if client, err := pipeline.NewClient(pipeline.ClientOptions{BaseURL: os.Getenv("PIPELINE_API_URL")}); err != nil {
		log.Println("Analysis pipeline disabled:", err)
	} else {
		pipelineClient = client
	}

	// Services
	userService := service.NewUserService(userRepo)
	studyService := service.NewStudyService(studyRepo, draftRepo, auditRepo, txManager, broker)
	assetService := service.NewAssetService(studyRepo, auditRepo, txManager, broker)
	takeoffService := service.NewTakeoffService(studyRepo, broker)
	defer takeoffService.CloseAll()
	exportService := service.NewExportService(studyRepo, auditRepo, export.NewPipeline(blobs))
	fileService := service.NewFileService(studyRepo, auditRepo, blobs, broker)
	analysisService := service.NewAnalysisService(pipelineClient, studyRepo, auditRepo, studyService)
	auditService := service.NewAuditService(auditRepo)
	draftService := service.NewDraftService(draftRepo, studyRepo)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	studyHandler := handler.NewStudyHandler(studyService)
	assetHandler := handler.NewAssetHandler(assetService)
	takeoffHandler := handler.NewTakeoffHandler(takeoffService)
	exportHandler := handler.NewExportHandler(exportService)
	fileHandler := handler.NewFileHandler(fileService)
	analysisHandler := handler.NewAnalysisHandler(analysisService)
	auditHandler := handler.NewAuditHandler(auditService)
	draftHandler := handler.NewDraftHandler(draftService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	api := router.Group("/api")
	userHandler.RegisterRoutes(api)
	studyHandler.RegisterRoutes(api)
	assetHandler.RegisterRoutes(api)
	takeoffHandler.RegisterRoutes(api)
	exportHandler.RegisterRoutes(api)
	fileHandler.RegisterRoutes(api)
	analysisHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)
	draftHandler.RegisterRoutes(api)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
