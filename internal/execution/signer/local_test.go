package signer

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, EnvKeystorePassword, EnvKeystorePasswordFile} {
		t.Setenv(key, "")
	}
}

func writeKeyFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create key dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("0x"+testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
}

func TestLoadEnvSignsTransactions(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	s, err := Load(SourceEnv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(0), Gas: 21_000, GasPrice: big.NewInt(1)})
	chainID := big.NewInt(44787)
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("expected sender %s, got %s", s.Address(), from)
	}
}

func TestLoadFileSourceUsesExplicitPath(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "wallet.hex")
	writeKeyFile(t, path)
	t.Setenv(EnvPrivateKeyFile, path)
	t.Setenv(EnvPrivateKey, "not-a-key")

	s, err := Load(SourceFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want, _ := FromHex(testPrivateKey)
	if s.Address() != want.Address() {
		t.Fatalf("unexpected address %s", s.Address())
	}
}

func TestLoadAutoFallsBackToDefaultKeyFile(t *testing.T) {
	clearKeyEnv(t)
	writeKeyFile(t, DefaultKeyFile())
	if _, err := Load(SourceAuto); err != nil {
		t.Fatalf("expected auto to find the default key file: %v", err)
	}
}

func TestLoadAutoPrefersEnvironment(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKeyFile, "/tmp/intentfi-missing-key")
	t.Setenv(EnvPrivateKey, testPrivateKey)
	if _, err := Load(""); err != nil {
		t.Fatalf("expected env key to win: %v", err)
	}
}

func TestLoadKeystore(t *testing.T) {
	clearKeyEnv(t)
	key, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, "hunter2")
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	passwordFile := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(passwordFile, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}
	t.Setenv(EnvKeystorePath, account.URL.Path)
	t.Setenv(EnvKeystorePasswordFile, passwordFile)

	s, err := Load(SourceKeystore)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Address() != account.Address {
		t.Fatalf("expected %s, got %s", account.Address, s.Address())
	}
}

func TestLoadKeystoreRequiresPassword(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvKeystorePath, filepath.Join(t.TempDir(), "key.json"))
	_, err := Load(SourceKeystore)
	if err == nil || !strings.Contains(err.Error(), "password required") {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestLoadMissingKey(t *testing.T) {
	clearKeyEnv(t)
	_, err := Load(SourceAuto)
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
	if !strings.Contains(err.Error(), DefaultKeyFile()) {
		t.Fatalf("expected default key path in %q", err)
	}
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	clearKeyEnv(t)
	if _, err := Load("ledger"); err == nil || !strings.Contains(err.Error(), "unsupported key source") {
		t.Fatalf("expected unsupported source error, got %v", err)
	}
}

func TestDefaultKeyFileUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/intentfi-config-home")
	if got := DefaultKeyFile(); got != "/tmp/intentfi-config-home/intentfi/key.hex" {
		t.Fatalf("unexpected default key file %q", got)
	}
}

func TestSignMessageRecoversAddress(t *testing.T) {
	s, err := FromHex(testPrivateKey)
	if err != nil {
		t.Fatalf("FromHex failed: %v", err)
	}
	msg := []byte("deposit 10 cUSD")
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}
	if len(sig) != 65 || sig[64] < 27 {
		t.Fatalf("unexpected signature %x", sig)
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != s.Address() {
		t.Fatal("recovered address does not match signer")
	}
}
