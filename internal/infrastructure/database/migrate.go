package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"assistant-server/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes for the assistant domain.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.Assistant{},
		&entities.Thread{},
		&entities.Message{},
		&entities.Run{},
		&entities.RunStep{},
	); err != nil {
		return err
	}

	log.Info().Msg("database schema up to date")
	return nil
}
