package main

import (
	"errors"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/service"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	Name       string
	Password   string
	MaxSources int
	Force      bool
}

// NewSeedConfig creates a new seed configuration
func NewSeedConfig() *SeedConfig {
	name := flag.String("name", "admin", "Admin user name")
	password := flag.String("password", "adminpass", "Admin password")
	maxSources := flag.Int("max-sources", -1, "Source quota for the admin user, negative for unlimited")
	force := flag.Bool("force", false, "Force recreation of admin user")

	flag.Parse()

	return &SeedConfig{
		Name:       *name,
		Password:   *password,
		MaxSources: *maxSources,
		Force:      *force,
	}
}

func main() {
	config := NewSeedConfig()

	if config.Name == "" {
		log.Fatal("Name cannot be empty")
	}
	if len(config.Password) < 6 {
		log.Fatal("Password must be at least 6 characters long")
	}

	log.Println("Starting database seeding...")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	dbConn, err := db.InitDB(logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	existing, err := service.GetUserByName(dbConn, config.Name)
	if err == nil {
		if !config.Force {
			log.Printf("Admin user '%s' already exists. Use -force flag to recreate.", config.Name)
			return
		}
		log.Printf("Recreating admin user '%s'...", config.Name)
		if err := dbConn.Delete(&db.User{}, existing.ID).Error; err != nil {
			log.Fatalf("Failed to delete existing user: %v", err)
		}
	} else if !errors.Is(err, service.ErrNotFound) {
		log.Fatalf("Database error checking existing user: %v", err)
	}

	admin, err := service.CreateUser(dbConn, config.Name, config.Password, config.MaxSources, true)
	if err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	log.Printf("Successfully created admin user: %s", admin.Name)
	log.Printf("User ID: %d", admin.ID)
	log.Println("Database seeding completed successfully")
}
