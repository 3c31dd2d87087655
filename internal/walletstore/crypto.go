package walletstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
)

const (
	// derivationPath records the BIP44 coin-type path used conceptually;
	// Solana keys are derived from the seed directly (ed25519, not
	// secp256k1), so this is metadata rather than an actual hdkeychain walk.
	derivationPath = "m/44'/501'/0'/0'/0'"
	kdfMethod      = "argon2id"

	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	nonceLen     = 12
)

// generateMnemonic produces a BIP39 mnemonic of the requested word count
// (12 or 24 words, i.e. 128 or 256 bits of entropy).
func generateMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", fmt.Errorf("walletstore: unsupported word count %d, must be 12 or 24", words)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("walletstore: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("walletstore: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// verifyMnemonic reports whether mnemonic is a well-formed, checksum-valid BIP39 phrase.
func verifyMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// keypairFromMnemonic rederives the Ed25519 keypair from a mnemonic the
// same way it was originally derived: the first 32 bytes of the BIP39
// seed become the Ed25519 private seed.
func keypairFromMnemonic(mnemonic string) (solanago.PrivateKey, error) {
	if !verifyMnemonic(mnemonic) {
		return nil, fmt.Errorf("walletstore: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, "")
	if len(seed) < 32 {
		return nil, fmt.Errorf("walletstore: derived seed too short")
	}
	edKey := ed25519.NewKeyFromSeed(seed[:32])
	return solanago.PrivateKey(edKey), nil
}

// encryptMnemonic encrypts plaintext mnemonic bytes under a key derived
// from the system-held master secret (never a per-user password) using
// AES-256-GCM. Returns ciphertext, the random per-wallet salt, and the
// random nonce, all of which must be stored alongside each other to
// decrypt later. The salt is per-wallet so a single master secret never
// yields the same derived key twice, even though it never changes.
func encryptMnemonic(mnemonic, masterSecret string) (ciphertext, salt, nonce []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("walletstore: generate salt: %w", err)
	}

	key := deriveKey(masterSecret, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("walletstore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("walletstore: new gcm: %w", err)
	}

	nonce = make([]byte, nonceLen)
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("walletstore: generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, []byte(mnemonic), nil)
	return ciphertext, salt, nonce, nil
}

// decryptMnemonic reverses encryptMnemonic. A wrong master secret (or
// corrupted data) surfaces as an authentication failure from GCM, never
// a silently-garbled mnemonic.
func decryptMnemonic(ciphertext, salt, nonce []byte, masterSecret string) (string, error) {
	key := deriveKey(masterSecret, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("walletstore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("walletstore: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("walletstore: decrypt failed, wrong master secret or corrupted data: %w", err)
	}
	return string(plaintext), nil
}

func deriveKey(masterSecret string, salt []byte) []byte {
	return argon2.IDKey([]byte(masterSecret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
