package models

import (
	"time"

	"gorm.io/gorm"
)

// SecureWallet is the at-rest record for a custodial Solana wallet.
// The mnemonic itself never reaches this table: EncryptedMnemonic is
// ciphertext produced by internal/walletstore under a key derived from
// the system-held master secret, and the keypair is rederived in memory
// by the wallet store; no per-user password is involved.
type SecureWallet struct {
	gorm.Model
	UserID            uint   `gorm:"uniqueIndex;not null"`
	PublicKey         string `gorm:"size:44;uniqueIndex;not null"`
	EncryptedMnemonic []byte `gorm:"type:bytea;not null"`
	Salt              []byte `gorm:"type:bytea;not null"`
	Nonce             []byte `gorm:"type:bytea;not null"`
	KDFMethod         string `gorm:"size:32;not null"` // "argon2id"
	DerivationPath    string `gorm:"size:64;not null"` // e.g. m/44'/501'/0'/0'/0'
	LastExportedAt    *time.Time
}

// BalanceSnapshot is the in-memory result of a balance read. It is
// never persisted; callers that need history should read TradeRecord
// entries instead.
type BalanceSnapshot struct {
	UserID    uint
	Lamports  uint64
	SOL       float64
	FetchedAt time.Time
	Cached    bool // true if served from cache/last-known-good rather than a fresh RPC call
}
