// Package config loads the node boot configuration spec §6 requires, the
// same getEnv-over-os.Getenv style the teacher's payout-engine config uses,
// extended with an optional HashiCorp Vault source for the MasterKEK seed.
package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	vault "github.com/hashicorp/vault/api"

	"github.com/moonramp/moonramp/internal/merr"
)

// Network is the chain environment a node is bound to (spec §6).
type Network string

const (
	Regtest Network = "Regtest"
	Testnet Network = "Testnet"
	Mainnet Network = "Mainnet"
)

func (n Network) valid() bool {
	switch n {
	case Regtest, Testnet, Mainnet:
		return true
	default:
		return false
	}
}

// BitcoinConfig is the bitcoind/bchd-compatible RPC endpoint a node talks
// to for on-chain confirmation and passthrough calls.
type BitcoinConfig struct {
	Host string
	User string
	Pass string
}

// MoneroConfig is the monerod JSON-RPC endpoint, when the node serves XMR
// wallets.
type MoneroConfig struct {
	Addr string
}

// BCHConfig is the bchd-compatible RPC endpoint, when the node serves BCH
// wallets. It is a separate node from Bitcoin's even though both speak the
// same adapter (internal/gateway.BitcoinGateway).
type BCHConfig struct {
	Host string
	User string
	Pass string
}

// VaultConfig, when Addr is non-empty, sources the MasterKEK seed from a
// HashiCorp Vault KV-v2 secret instead of an environment variable (spec
// §4.1's Vault-backed MKEK source).
type VaultConfig struct {
	Addr      string
	KeyPath   string
	Token     string
	Namespace string
}

// Config is everything a node needs to boot (spec §6's node-boot config
// list), assembled by Load from the process environment.
type Config struct {
	NodeID                 string
	ProgramHTTPAddr        string
	SaleHTTPAddr           string
	WalletHTTPAddr         string
	MasterMerchantID       string
	MasterKeyEncryptionKey []byte
	DBURL                  string
	Network                Network

	Bitcoin BitcoinConfig
	BCH     BCHConfig
	Monero  MoneroConfig
	Vault   VaultConfig

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads the process environment into a Config, resolving the
// MasterKEK seed from Vault when VaultConfig.Addr is set, otherwise from
// MASTER_KEY_ENCRYPTION_KEY directly.
func Load(ctx context.Context) (*Config, error) {
	network := Network(getEnv("NETWORK", string(Regtest)))
	if !network.valid() {
		return nil, merr.New(merr.Invalid, fmt.Sprintf("unknown network %q", network))
	}

	rateLimit, err := strconv.ParseFloat(getEnv("RATE_LIMIT_PER_SECOND", "10"), 64)
	if err != nil {
		return nil, merr.Wrap(merr.Invalid, "parse RATE_LIMIT_PER_SECOND", err)
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20"))
	if err != nil {
		return nil, merr.Wrap(merr.Invalid, "parse RATE_LIMIT_BURST", err)
	}

	cfg := &Config{
		NodeID:           getEnv("NODE_ID", ""),
		ProgramHTTPAddr:  getEnv("PROGRAM_HTTP_ADDR", ":8081"),
		SaleHTTPAddr:     getEnv("SALE_HTTP_ADDR", ":8082"),
		WalletHTTPAddr:   getEnv("WALLET_HTTP_ADDR", ":8083"),
		MasterMerchantID: getEnv("MASTER_MERCHANT_ID", ""),
		DBURL:            getEnv("DATABASE_URL", ""),
		Network:          network,

		Bitcoin: BitcoinConfig{
			Host: getEnv("BITCOIN_RPC_HOST", "127.0.0.1:8332"),
			User: getEnv("BITCOIN_RPC_USER", ""),
			Pass: getEnv("BITCOIN_RPC_PASS", ""),
		},
		BCH: BCHConfig{
			Host: getEnv("BCH_RPC_HOST", ""),
			User: getEnv("BCH_RPC_USER", ""),
			Pass: getEnv("BCH_RPC_PASS", ""),
		},
		Monero: MoneroConfig{
			Addr: getEnv("MONERO_RPC_ADDR", ""),
		},
		Vault: VaultConfig{
			Addr:      getEnv("VAULT_ADDR", ""),
			KeyPath:   getEnv("VAULT_KEY_PATH", ""),
			Token:     getEnv("VAULT_TOKEN", ""),
			Namespace: getEnv("VAULT_NAMESPACE", ""),
		},

		RateLimitPerSecond: rateLimit,
		RateLimitBurst:     burst,
	}

	mkek, err := loadMasterKEK(ctx, cfg.Vault)
	if err != nil {
		return nil, err
	}
	cfg.MasterKeyEncryptionKey = mkek

	return cfg, nil
}

// loadMasterKEK resolves the MasterKEK seed bytes: from Vault when vc.Addr
// is configured, otherwise from MASTER_KEY_ENCRYPTION_KEY (hex-encoded) in
// the environment. The Vault secret is read once, at boot, and never
// re-read or persisted (spec §4.1).
func loadMasterKEK(ctx context.Context, vc VaultConfig) ([]byte, error) {
	if vc.Addr == "" {
		raw := os.Getenv("MASTER_KEY_ENCRYPTION_KEY")
		if raw == "" {
			return nil, merr.New(merr.Invalid, "MASTER_KEY_ENCRYPTION_KEY is required when Vault is not configured")
		}
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode MASTER_KEY_ENCRYPTION_KEY", err)
		}
		return key, nil
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = vc.Addr
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, merr.Wrap(merr.CryptoFailure, "create vault client", err)
	}
	client.SetToken(vc.Token)
	if vc.Namespace != "" {
		client.SetNamespace(vc.Namespace)
	}

	secret, err := client.Logical().ReadWithContext(ctx, vc.KeyPath)
	if err != nil {
		return nil, merr.Wrap(merr.CryptoFailure, "read MasterKEK secret from vault", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, merr.New(merr.CryptoFailure, "MasterKEK secret not found in vault")
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}
	raw, ok := data["value"].(string)
	if !ok {
		return nil, merr.New(merr.CryptoFailure, "vault secret missing \"value\" field")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, merr.Wrap(merr.CryptoFailure, "decode MasterKEK secret from vault", err)
	}
	return key, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
