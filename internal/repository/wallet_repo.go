// Package repository holds the gorm-backed persistence out-ports (C11).
// Every query here is parameter-bound through gorm's placeholder syntax
// (Where("col = ?", val)) rather than string concatenation, the same
// discipline the s7partners wallet repositories use.
package repository

import (
	"context"
	"fmt"

	"github.com/wnt/soltrader/internal/metrics"
	"github.com/wnt/soltrader/internal/models"
	"gorm.io/gorm"
)

// WalletRepository persists SecureWallet rows.
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository builds a WalletRepository.
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a new wallet row.
func (r *WalletRepository) Create(ctx context.Context, wallet *models.SecureWallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		metrics.RecordDatabaseOperation("insert_wallet", "failed")
		return fmt.Errorf("repository: create wallet: %w", err)
	}
	metrics.RecordDatabaseOperation("insert_wallet", "success")
	return nil
}

// GetByUserID fetches the wallet for a single user.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.SecureWallet, error) {
	var wallet models.SecureWallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("repository: get wallet by user: %w", err)
	}
	return &wallet, nil
}

// ListUserIDs returns every user ID with a registered wallet.
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.SecureWallet{}).Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("repository: list wallet user ids: %w", err)
	}
	return ids, nil
}

// Delete removes a wallet row for a user.
func (r *WalletRepository) Delete(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.SecureWallet{}).Error; err != nil {
		return fmt.Errorf("repository: delete wallet: %w", err)
	}
	return nil
}
