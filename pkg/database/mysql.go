// Package database 管理 MySQL 与 Redis 的全局连接。
package database

import (
	"doc-organizer-go/internal/model"
	"doc-organizer-go/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接并迁移表结构
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := DB.AutoMigrate(&model.User{}, &model.Document{}, &model.SearchQueryLog{}); err != nil {
		log.Fatal("failed to migrate database", err)
	}

	log.Info("MySQL database connected successfully")
}
