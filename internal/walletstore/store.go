// Package walletstore is the multi-tenant custodial wallet component
// (C1): it generates and imports mnemonics, derives Solana keypairs,
// encrypts mnemonics at rest, and is the sole place a plaintext key
// ever exists outside of a signing call. Grounded on the Python
// MultiUserWalletManager, replacing its Fernet/PBKDF2 primitives with
// AES-256-GCM/Argon2id and its in-process dict cache with a mutex-
// guarded map of decrypted keypairs.
package walletstore

import (
	"context"
	"fmt"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/errs"
	"github.com/wnt/soltrader/internal/models"
)

// Repository is the persistence out-port this store depends on, kept
// separate so tests can swap in an in-memory fake without a database.
type Repository interface {
	Create(ctx context.Context, wallet *models.SecureWallet) error
	GetByUserID(ctx context.Context, userID uint) (*models.SecureWallet, error)
	ListUserIDs(ctx context.Context) ([]uint, error)
	Delete(ctx context.Context, userID uint) error
}

// cachedKeypair holds a rederived keypair so a wallet need not be
// decrypted on every call within its lifetime.
type cachedKeypair struct {
	keypair solanago.PrivateKey
}

// Store is the entry point for all wallet lifecycle operations. Every
// wallet's mnemonic is encrypted under a key derived from masterSecret
// (a system-held secret loaded once at process start, never a per-user
// password), so any process holding that secret can decrypt any
// wallet — including a freshly restarted one with an empty cache. The
// external interface (engine, scheduler) never sees or supplies a
// password.
type Store struct {
	repo         Repository
	masterSecret string
	logger       zerolog.Logger

	mutex sync.RWMutex
	cache map[uint]*cachedKeypair
}

// New constructs a Store. Call LoadAll afterwards to eagerly warm the
// keypair cache from every wallet already on disk.
func New(repo Repository, masterSecret string, logger zerolog.Logger) *Store {
	return &Store{
		repo:         repo,
		masterSecret: masterSecret,
		logger:       logger.With().Str("component", "walletstore").Logger(),
		cache:        make(map[uint]*cachedKeypair),
	}
}

// LoadAll rebuilds the keypair cache for every wallet on disk, so no
// first-request latency is paid mid-cycle and the scheduler's very
// first scan after a restart never blocks on a cold decrypt. A single
// user's decrypt failure is logged and skipped rather than aborting
// the rest of the fleet.
func (s *Store) LoadAll(ctx context.Context) error {
	userIDs, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return errs.Persistence("LoadAll", "list wallet owners", err)
	}

	loaded := 0
	for _, userID := range userIDs {
		wallet, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("loadAll: failed to fetch wallet, skipping")
			continue
		}

		keypair, err := s.decryptAndDerive(wallet)
		if err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("loadAll: failed to decrypt wallet, skipping")
			continue
		}

		s.mutex.Lock()
		s.cache[userID] = &cachedKeypair{keypair: keypair}
		s.mutex.Unlock()
		loaded++
	}

	s.logger.Info().Int("loaded", loaded).Int("total", len(userIDs)).Msg("loadAll: keypair cache warmed")
	return nil
}

// CreateWallet generates a brand-new 12-word mnemonic, derives its
// keypair, encrypts the mnemonic under the master secret, and persists
// the result. If persistence fails, no partial record is left
// anywhere: nothing is written to the repository until encryption
// succeeds, and there is no on-disk blob to clean up in this
// implementation (the repository is the only persistence boundary).
func (s *Store) CreateWallet(ctx context.Context, userID uint) (*models.SecureWallet, string, error) {
	if existing, err := s.repo.GetByUserID(ctx, userID); err == nil && existing != nil {
		return nil, "", errs.AlreadyExists("CreateWallet", fmt.Sprintf("user %d already has a wallet", userID), nil)
	}

	mnemonic, err := generateMnemonic(12)
	if err != nil {
		return nil, "", errs.Fatal("CreateWallet", "generate mnemonic", err)
	}

	wallet, err := s.persistNewWallet(ctx, userID, mnemonic)
	if err != nil {
		return nil, "", err
	}
	return wallet, mnemonic, nil
}

// ImportWallet derives a keypair from a caller-supplied mnemonic (12 or
// 24 words) and persists it the same way CreateWallet does.
func (s *Store) ImportWallet(ctx context.Context, userID uint, mnemonic string) (*models.SecureWallet, error) {
	words := countWords(mnemonic)
	if words != 12 && words != 24 {
		return nil, errs.InvalidInput("ImportWallet", fmt.Sprintf("mnemonic has %d words, expected 12 or 24", words), nil)
	}
	if !verifyMnemonic(mnemonic) {
		return nil, errs.InvalidInput("ImportWallet", "mnemonic checksum is invalid", nil)
	}
	if existing, err := s.repo.GetByUserID(ctx, userID); err == nil && existing != nil {
		return nil, errs.AlreadyExists("ImportWallet", fmt.Sprintf("user %d already has a wallet", userID), nil)
	}

	return s.persistNewWallet(ctx, userID, mnemonic)
}

func (s *Store) persistNewWallet(ctx context.Context, userID uint, mnemonic string) (*models.SecureWallet, error) {
	keypair, err := keypairFromMnemonic(mnemonic)
	if err != nil {
		return nil, errs.InvalidInput("persistNewWallet", "derive keypair", err)
	}

	ciphertext, salt, nonce, err := encryptMnemonic(mnemonic, s.masterSecret)
	if err != nil {
		return nil, errs.Fatal("persistNewWallet", "encrypt mnemonic", err)
	}

	wallet := &models.SecureWallet{
		UserID:            userID,
		PublicKey:         keypair.PublicKey().String(),
		EncryptedMnemonic: ciphertext,
		Salt:              salt,
		Nonce:             nonce,
		KDFMethod:         kdfMethod,
		DerivationPath:    derivationPath,
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		// Nothing was written to disk outside the repository call itself,
		// so there is no encrypted blob to clean up on this failure path.
		return nil, errs.Persistence("persistNewWallet", "register wallet", err)
	}

	s.mutex.Lock()
	s.cache[userID] = &cachedKeypair{keypair: keypair}
	s.mutex.Unlock()

	return wallet, nil
}

// GetKeypair returns the decrypted keypair for userID, authorizing the
// call against requestingUserID first. Pass requestingUserID equal to
// userID for self-service calls; an internal caller acting on behalf of
// the system (e.g. a scheduled trade) passes zero (see verifyOwnership). A
// cache miss — the common case right after a restart, before LoadAll
// runs, or for a user LoadAll skipped — decrypts from the master secret
// alone; no session-held password is ever required.
func (s *Store) GetKeypair(ctx context.Context, userID uint, requestingUserID uint) (solanago.PrivateKey, error) {
	if err := s.verifyOwnership(ctx, userID, requestingUserID); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	if cached, ok := s.cache[userID]; ok {
		s.mutex.RUnlock()
		return cached.keypair, nil
	}
	s.mutex.RUnlock()

	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errs.NotFound("GetKeypair", fmt.Sprintf("no wallet for user %d", userID), err)
	}

	keypair, err := s.decryptAndDerive(wallet)
	if err != nil {
		return nil, errs.Fatal("GetKeypair", "decrypt wallet", err)
	}

	s.mutex.Lock()
	s.cache[userID] = &cachedKeypair{keypair: keypair}
	s.mutex.Unlock()

	return keypair, nil
}

func (s *Store) decryptAndDerive(wallet *models.SecureWallet) (solanago.PrivateKey, error) {
	mnemonic, err := decryptMnemonic(wallet.EncryptedMnemonic, wallet.Salt, wallet.Nonce, s.masterSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt mnemonic: %w", err)
	}

	keypair, err := keypairFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("rederive keypair: %w", err)
	}
	return keypair, nil
}

// ExportMnemonic decrypts and returns the raw mnemonic. Every call is
// logged at warn level regardless of outcome: exporting a custodial key
// is the single most security-sensitive operation this store performs.
func (s *Store) ExportMnemonic(ctx context.Context, userID uint, requestingUserID uint) (string, error) {
	s.logger.Warn().Uint("user_id", userID).Uint("requesting_user_id", requestingUserID).Msg("mnemonic export requested")

	if err := s.verifyOwnership(ctx, userID, requestingUserID); err != nil {
		return "", err
	}

	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", errs.NotFound("ExportMnemonic", fmt.Sprintf("no wallet for user %d", userID), err)
	}

	mnemonic, err := decryptMnemonic(wallet.EncryptedMnemonic, wallet.Salt, wallet.Nonce, s.masterSecret)
	if err != nil {
		return "", errs.Fatal("ExportMnemonic", "decrypt mnemonic", err)
	}

	return mnemonic, nil
}

// GetWallet returns the public wallet record (no secret material) for userID.
func (s *Store) GetWallet(ctx context.Context, userID uint) (*models.SecureWallet, error) {
	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errs.NotFound("GetWallet", fmt.Sprintf("no wallet for user %d", userID), err)
	}
	return wallet, nil
}

// ListUserIDs returns every user ID with a registered wallet. The
// scheduler calls this once per cycle to build its scan list.
func (s *Store) ListUserIDs(ctx context.Context) ([]uint, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, errs.Persistence("ListUserIDs", "list wallet owners", err)
	}
	return ids, nil
}

// verifyOwnership enforces that requestingUserID may act on userID's
// wallet: either they are the same user, or requestingUserID is zero,
// which marks an internal system caller (the scheduler acting on a
// user's own behalf, never a cross-user request).
func (s *Store) verifyOwnership(ctx context.Context, userID, requestingUserID uint) error {
	if requestingUserID != 0 && requestingUserID != userID {
		return errs.Unauthorized("verifyOwnership", fmt.Sprintf("user %d may not access user %d's wallet", requestingUserID, userID), nil)
	}
	if _, err := s.repo.GetByUserID(ctx, userID); err != nil {
		return errs.NotFound("verifyOwnership", fmt.Sprintf("no wallet for user %d", userID), err)
	}
	return nil
}

func countWords(mnemonic string) int {
	count := 0
	inWord := false
	for _, r := range mnemonic {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			count++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return count
}
