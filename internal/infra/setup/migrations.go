package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// MigrateDB 自动迁移数据库模式。
// 所有字符串索引列都声明为 varchar(191)，避免 MySQL utf8mb4 下
// TEXT/BLOB 列建索引需要指定长度的问题。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.Membership{},
		&domain.Message{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
