package bootstrap

import (
	"context"
	"fmt"
	"log"

	"anoa.com/lostfound/internal/entity"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Item{},
		&entity.MatchLink{},
		&entity.Conversation{},
		&entity.Participant{},
		&entity.Message{},
		&entity.MessageRead{},
		&entity.Notification{},
	)
}

// SeedAdminUser creates the development admin account once.
func SeedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&entity.User{}).
		Where("email = ?", "admin@lostfound.local").
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	password := "admin123"
	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminUser := entity.User{
		Name:         "Administrator",
		Email:        "admin@lostfound.local",
		PasswordHash: string(hashedPasswordBytes),
		Role:         entity.RoleAdmin,
		IsActive:     true,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Println("✅ Admin user seeded successfully")
	log.Println("   Email: admin@lostfound.local")
	log.Println("   Password: admin123")

	return nil
}

// ConnectRedis returns nil when url is empty so callers fall back to
// in-process brokers.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Println("✅ Connected to redis")
	return client, nil
}
