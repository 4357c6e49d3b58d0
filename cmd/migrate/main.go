package main

import (
	"log"

	"bazaarchat/config"
	"bazaarchat/internal/domain/chat"
	"bazaarchat/pkg/database"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&chat.Conversation{},
		&chat.Member{},
		&chat.Message{},
	); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	log.Println("Migrations applied")
}
