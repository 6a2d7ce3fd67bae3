// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/poolroom/models"
)

// GormLedger 使用GORM的结算账本
type GormLedger struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormLedger, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormLedger(db)
}

// NewGormLedger wraps an open database and migrates the settlements table.
func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&models.GormSettlement{}); err != nil {
		return nil, fmt.Errorf("migrate settlements: %w", err)
	}
	return &GormLedger{db: db}, nil
}

func newGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)
}

func (g *GormLedger) RecordSettlement(ctx context.Context, record models.SettlementRecord) error {
	row := models.GormSettlement{
		RoomCode:   record.RoomCode,
		Round:      record.Round,
		WinnerID:   record.WinnerID,
		WinnerName: record.WinnerName,
		Amount:     record.Amount,
		Auto:       record.Auto,
		SettledAt:  record.SettledAt,
	}
	return g.db.WithContext(ctx).Create(&row).Error
}

// Settlements lists a room's settlements oldest first.
func (g *GormLedger) Settlements(ctx context.Context, roomCode string) ([]models.SettlementRecord, error) {
	var rows []models.GormSettlement
	err := g.db.WithContext(ctx).
		Where("room_code = ?", roomCode).
		Order("settled_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.SettlementRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.SettlementRecord{
			RoomCode:   row.RoomCode,
			Round:      row.Round,
			WinnerID:   row.WinnerID,
			WinnerName: row.WinnerName,
			Amount:     row.Amount,
			Auto:       row.Auto,
			SettledAt:  row.SettledAt,
		})
	}
	return records, nil
}

func (g *GormLedger) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
