package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"party-lobby/internal/domain"
)

// MigrateDB 创建或更新 rooms / room_players / users / room_stats 表及索引
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	migrator := db
	if db.Dialector.Name() == DriverMySQL {
		migrator = db.Set("gorm:table_options", "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci")
	}

	err := migrator.AutoMigrate(
		&domain.Room{},
		&domain.Player{},
		&domain.User{},
		&domain.RoomStats{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
