package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jakekinchen/TrailMates-sub002/handlers"
	"github.com/jakekinchen/TrailMates-sub002/middleware"
	"github.com/jakekinchen/TrailMates-sub002/services"
	"github.com/jakekinchen/TrailMates-sub002/stores"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	// Durable store (MongoDB)
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Fatal("MONGODB_URI environment variable is not set")
	}
	mongoDB := os.Getenv("MONGODB_DB")
	if mongoDB == "" {
		mongoDB = "trailmates"
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB")
	profileStore := stores.NewMongoProfileStore(client, mongoDB)

	// Ephemeral store (Redis)
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Fatal("REDIS_ADDR environment variable is not set")
	}
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		redisDB, err = strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid REDIS_DB value: %v", err)
		}
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr, DB: redisDB})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	presenceStore := stores.NewRedisPresenceStore(redisClient)
	requestStore := stores.NewRedisRequestStore(redisClient)
	notificationStore := stores.NewRedisNotificationStore(redisClient)

	// Trail geometry
	boundaryPath := os.Getenv("TRAIL_BOUNDARY_PATH")
	if boundaryPath == "" {
		boundaryPath = "./data/trail-boundary.json"
	}
	geofence, err := services.NewGeofenceFromFile(boundaryPath)
	if err != nil {
		log.Fatalf("Invalid trail boundary data: %v", err)
	}

	// Presence gates (policy constants; override per deployment)
	minInterval := services.DefaultPresenceMinInterval
	if v := os.Getenv("PRESENCE_MIN_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid PRESENCE_MIN_INTERVAL value: %v", err)
		}
		minInterval = time.Duration(seconds) * time.Second
	}
	minDistance := services.DefaultPresenceMinDistance
	if v := os.Getenv("PRESENCE_MIN_DISTANCE_M"); v != "" {
		minDistance, err = strconv.ParseFloat(v, 64)
		if err != nil {
			log.Fatalf("Invalid PRESENCE_MIN_DISTANCE_M value: %v", err)
		}
	}

	// Services
	hasher := services.NewPhoneHasher(os.Getenv("PHONE_HASH_PEPPER"))
	authService := services.NewAuthService(profileStore, hasher, jwtSecret)
	identityService := services.NewIdentityService(profileStore, hasher, services.NewSessionPhoneProvider())
	graphService := services.NewSocialGraphService(profileStore, hasher)
	notificationService := services.NewNotificationService(notificationStore, profileStore)
	coordinator := services.NewSyncCoordinator(graphService, requestStore, notificationService, notificationStore)
	requestService := services.NewFriendRequestService(requestStore, graphService, notificationService, coordinator)
	publisher := services.NewPresencePublisher(presenceStore, minInterval, minDistance)
	observer := services.NewPresenceObserver(presenceStore, profileStore, geofence)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(graphService, identityService)
	friendHandler := handlers.NewFriendHandler(requestService, coordinator)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	presenceHandler := handlers.NewPresenceHandler(publisher, observer, graphService)

	r := mux.NewRouter()
	r.Use(middleware.ErrorMiddleware())

	allowedOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	r.Use(middleware.CORSMiddleware(allowedOrigins))

	// Auth routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", authHandler.LoginUser).Methods("POST", "OPTIONS")

	// Pre-signup check, no auth required
	r.HandleFunc("/users/check-exists", userHandler.CheckUserExists).Methods("POST", "OPTIONS")

	// User routes
	userRouter := r.PathPrefix("/users").Subrouter()
	userRouter.Use(middleware.JWTMiddleware(jwtSecret))
	userRouter.HandleFunc("/find-by-phone-numbers", userHandler.FindUsersByPhoneNumbers).Methods("POST", "OPTIONS")
	userRouter.HandleFunc("/check-username", userHandler.CheckUsernameTaken).Methods("GET", "OPTIONS")
	userRouter.HandleFunc("/ensure", userHandler.EnsureUserDocument).Methods("POST", "OPTIONS")

	// Friend routes
	friendRouter := r.PathPrefix("/friends").Subrouter()
	friendRouter.Use(middleware.JWTMiddleware(jwtSecret))
	friendRouter.HandleFunc("/request", friendHandler.SendFriendRequest).Methods("POST", "OPTIONS")
	friendRouter.HandleFunc("/accept", friendHandler.AcceptFriendRequest).Methods("POST", "OPTIONS")
	friendRouter.HandleFunc("/reject", friendHandler.RejectFriendRequest).Methods("POST", "OPTIONS")
	friendRouter.HandleFunc("/remove", friendHandler.RemoveFriend).Methods("POST", "OPTIONS")
	friendRouter.HandleFunc("/requests", friendHandler.ListPendingRequests).Methods("GET", "OPTIONS")

	// Notification routes
	notifRouter := r.PathPrefix("/notifications").Subrouter()
	notifRouter.Use(middleware.JWTMiddleware(jwtSecret))
	notifRouter.HandleFunc("", notificationHandler.ListNotifications).Methods("GET", "OPTIONS")
	notifRouter.HandleFunc("/send", notificationHandler.SendNotification).Methods("POST", "OPTIONS")
	notifRouter.HandleFunc("/stream", notificationHandler.StreamNotifications).Methods("GET")
	notifRouter.HandleFunc("/{id}/read", notificationHandler.MarkNotificationRead).Methods("POST", "OPTIONS")
	notifRouter.HandleFunc("/{id}", notificationHandler.DeleteNotification).Methods("DELETE", "OPTIONS")

	// Presence routes
	presenceRouter := r.PathPrefix("/presence").Subrouter()
	presenceRouter.Use(middleware.JWTMiddleware(jwtSecret))
	presenceRouter.HandleFunc("/ping", presenceHandler.PingLocation).Methods("POST", "OPTIONS")
	presenceRouter.HandleFunc("/clear", presenceHandler.ClearLocation).Methods("POST", "OPTIONS")
	presenceRouter.HandleFunc("/{userID}", presenceHandler.GetPresence).Methods("GET", "OPTIONS")
	presenceRouter.HandleFunc("/{userID}/stream", presenceHandler.StreamPresence).Methods("GET")

	// Admin routes
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.JWTMiddleware(jwtSecret))
	adminRouter.HandleFunc("/migrate-phone-numbers", userHandler.MigratePhoneNumbers).Methods("POST", "OPTIONS")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
