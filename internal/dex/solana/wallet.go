package solana

import (
	"errors"
	"os"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"snipebot-go/internal/config"
)

// ErrNoSigningKey is fatal at startup: the process must not proceed into
// trading logic without a signing credential.
var ErrNoSigningKey = errors.New("no signing key: set SOLANA_PRIVATE_KEY_BASE58 or wallet.private_key_base58")

// LoadPrivateKey resolves the signing key from the environment first, then
// the config file. There is no fallback beyond these.
func LoadPrivateKey(cfg config.Wallet) (solana.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	b58 := os.Getenv("SOLANA_PRIVATE_KEY_BASE58")
	if b58 == "" {
		b58 = cfg.PrivateKeyBase58
	}
	if b58 == "" {
		return nil, ErrNoSigningKey
	}
	return solana.PrivateKeyFromBase58(b58)
}
