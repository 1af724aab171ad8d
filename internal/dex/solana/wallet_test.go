package solana

import (
	"errors"
	"os"
	"testing"

	solana "github.com/gagliardetto/solana-go"

	"snipebot-go/internal/config"
)

func TestLoadPrivateKeyFromEnv(t *testing.T) {
	wallet := solana.NewWallet()
	os.Setenv("SOLANA_PRIVATE_KEY_BASE58", wallet.PrivateKey.String())
	defer os.Unsetenv("SOLANA_PRIVATE_KEY_BASE58")

	key, err := LoadPrivateKey(config.Wallet{})
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(wallet.PublicKey()) {
		t.Fatalf("expected public key %s, got %s", wallet.PublicKey(), key.PublicKey())
	}
}

func TestLoadPrivateKeyFromConfig(t *testing.T) {
	os.Unsetenv("SOLANA_PRIVATE_KEY_BASE58")
	wallet := solana.NewWallet()

	key, err := LoadPrivateKey(config.Wallet{PrivateKeyBase58: wallet.PrivateKey.String()})
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(wallet.PublicKey()) {
		t.Fatalf("public key mismatch")
	}
}

func TestLoadPrivateKeyMissing(t *testing.T) {
	os.Unsetenv("SOLANA_PRIVATE_KEY_BASE58")
	_, err := LoadPrivateKey(config.Wallet{})
	if !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}
