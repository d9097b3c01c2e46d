package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schoolPrint/internal/config"
)

const slowQueryThreshold = 500 * time.Millisecond

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "[gorm] ", log.LstdFlags), logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database %s@%s:%d: %w", cfg.Name, cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// AutoMigrate 创建或更新全部表结构。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&School{}, &Student{}, &ExamResult{}, &CardTemplate{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
