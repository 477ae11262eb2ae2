package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "INTENTFI_PRIVATE_KEY"
	EnvPrivateKeyFile       = "INTENTFI_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "INTENTFI_KEYSTORE_PATH"
	EnvKeystorePassword     = "INTENTFI_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "INTENTFI_KEYSTORE_PASSWORD_FILE"

	SourceAuto     = "auto"
	SourceEnv      = "env"
	SourceFile     = "file"
	SourceKeystore = "keystore"
)

// ErrNoKey means no source named by the key-source setting is configured.
var ErrNoKey = errors.New("no signing key configured")

// Local holds a secp256k1 key in memory.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (l *Local) Address() common.Address {
	return l.address
}

func (l *Local) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if l == nil || l.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), l.key)
}

// SignMessage returns a 65 byte signature over the EIP-191 hash of msg with
// the recovery id shifted to 27/28, as wallets return it.
func (l *Local) SignMessage(msg []byte) ([]byte, error) {
	if l == nil || l.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), l.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// FromHex builds a signer from a hex private key, with or without 0x.
func FromHex(raw string) (*Local, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *Local {
	return &Local{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// keySource reports ok=false when it is not configured so auto can move on.
type keySource struct {
	name string
	load func() (key *Local, ok bool, err error)
}

var keySources = []keySource{
	{name: SourceEnv, load: loadEnvKey},
	{name: SourceFile, load: loadKeyFile},
	{name: SourceKeystore, load: loadKeystore},
}

// Load resolves the signing key from the named source. auto tries the
// environment variable, then the key file, then the keystore, and uses the
// first one that is configured.
func Load(source string) (*Local, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = SourceAuto
	}
	matched := false
	for _, ks := range keySources {
		if source != SourceAuto && source != ks.name {
			continue
		}
		matched = true
		key, ok, err := ks.load()
		if err != nil {
			return nil, fmt.Errorf("%s key: %w", ks.name, err)
		}
		if ok {
			return key, nil
		}
	}
	if !matched {
		return nil, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, SourceAuto, SourceEnv, SourceFile, SourceKeystore)
	}
	return nil, fmt.Errorf("%w: set %s, write a hex key to %s, or set %s", ErrNoKey, EnvPrivateKey, DefaultKeyFile(), EnvKeystorePath)
}

func loadEnvKey() (*Local, bool, error) {
	raw := strings.TrimSpace(os.Getenv(EnvPrivateKey))
	if raw == "" {
		return nil, false, nil
	}
	key, err := FromHex(raw)
	return key, err == nil, err
}

func loadKeyFile() (*Local, bool, error) {
	path := strings.TrimSpace(os.Getenv(EnvPrivateKeyFile))
	if path == "" {
		path = DefaultKeyFile()
		if !isFile(path) {
			return nil, false, nil
		}
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	key, err := FromHex(string(buf))
	return key, err == nil, err
}

func loadKeystore() (*Local, bool, error) {
	path := strings.TrimSpace(os.Getenv(EnvKeystorePath))
	if path == "" {
		return nil, false, nil
	}
	password := os.Getenv(EnvKeystorePassword)
	if strings.TrimSpace(password) == "" {
		if file := strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)); file != "" {
			buf, err := os.ReadFile(file)
			if err != nil {
				return nil, false, fmt.Errorf("read password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
	}
	if strings.TrimSpace(password) == "" {
		return nil, false, fmt.Errorf("password required: set %s or %s", EnvKeystorePassword, EnvKeystorePasswordFile)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	decrypted, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, false, fmt.Errorf("decrypt: %w", err)
	}
	return fromKey(decrypted.PrivateKey), true, nil
}

// DefaultKeyFile is $XDG_CONFIG_HOME/intentfi/key.hex, or ~/.config when
// XDG_CONFIG_HOME is unset. It is empty when no home directory is known.
func DefaultKeyFile() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "intentfi", "key.hex")
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
