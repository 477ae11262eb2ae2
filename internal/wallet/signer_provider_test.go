package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/intentfi/intentfi/internal/execution/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestSignerProviderSignsAndBroadcasts(t *testing.T) {
	local, err := signer.FromHex(testPrivateKey)
	require.NoError(t, err)

	upstream := newFakeProvider()
	upstream.handlers["eth_getTransactionCount"] = func([]any) (any, error) { return "0x5", nil }
	var raw string
	upstream.handlers["eth_sendRawTransaction"] = func(params []any) (any, error) {
		raw = params[0].(string)
		return testHash, nil
	}
	p := NewSignerProvider(local, upstream, 44787)

	accounts, err := p.Request(context.Background(), "eth_accounts")
	require.NoError(t, err)
	var list []string
	require.NoError(t, json.Unmarshal(accounts, &list))
	assert.Equal(t, []string{local.Address().Hex()}, list)

	out, err := p.Request(context.Background(), "eth_sendTransaction", TxArgs{
		From:  local.Address().Hex(),
		To:    testRecipient,
		Value: hexutil.EncodeBig(big.NewInt(42)),
		Gas:   hexutil.EncodeUint64(NativeGasLimit),
	})
	require.NoError(t, err)
	var hash string
	require.NoError(t, json.Unmarshal(out, &hash))
	assert.Equal(t, testHash, hash)

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(hexutil.MustDecode(raw)))
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, common.HexToAddress(testRecipient), *tx.To())
	assert.Equal(t, int64(42), tx.Value().Int64())
	assert.Equal(t, uint64(NativeGasLimit), tx.Gas())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(44787)), &tx)
	require.NoError(t, err)
	assert.Equal(t, local.Address(), from)
}

func TestSignerProviderRejectsForeignSender(t *testing.T) {
	local, err := signer.FromHex(testPrivateKey)
	require.NoError(t, err)
	p := NewSignerProvider(local, newFakeProvider(), 44787)
	_, err = p.Request(context.Background(), "eth_sendTransaction", TxArgs{From: testSender, To: testRecipient})
	require.Error(t, err)
}

func TestSignerProviderPersonalSign(t *testing.T) {
	local, err := signer.FromHex(testPrivateKey)
	require.NoError(t, err)
	p := NewSignerProvider(local, newFakeProvider(), 44787)

	msg := []byte("approve transfer")
	out, err := p.Request(context.Background(), "personal_sign", hexutil.Encode(msg), local.Address().Hex())
	require.NoError(t, err)
	var sigHex string
	require.NoError(t, json.Unmarshal(out, &sigHex))
	sig := hexutil.MustDecode(sigHex)
	require.Len(t, sig, 65)
	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, local.Address(), crypto.PubkeyToAddress(*pub))

	_, err = p.Request(context.Background(), "personal_sign", "hello", testSender)
	require.Error(t, err)
}
