package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// UserDirectory reads accounts from the relational user store.
type UserDirectory struct {
	db *gorm.DB
}

// OpenMySQL connects gorm to MySQL and sizes the pool.
func OpenMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Migrate() error {
	if err := d.db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (d *UserDirectory) ListAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	if err := d.db.WithContext(ctx).Where("role = ?", models.RoleAdmin).Order("id").Find(&admins).Error; err != nil {
		return nil, err
	}
	return admins, nil
}

func (d *UserDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (d *UserDirectory) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
