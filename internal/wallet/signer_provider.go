package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/execution/signer"
)

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// SignerProvider answers account and signing requests with a local signer and
// forwards everything else upstream. eth_sendTransaction is signed locally
// and broadcast as eth_sendRawTransaction.
type SignerProvider struct {
	signer   signer.Signer
	upstream Provider
	chainID  *big.Int
}

func NewSignerProvider(s signer.Signer, upstream Provider, chainID int64) *SignerProvider {
	return &SignerProvider{signer: s, upstream: upstream, chainID: big.NewInt(chainID)}
}

func (p *SignerProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]string{p.signer.Address().Hex()})
	case "eth_chainId":
		return json.Marshal(hexutil.EncodeBig(p.chainID))
	case "eth_sendTransaction":
		if len(params) != 1 {
			return nil, clierr.New(clierr.CodeUsage, "eth_sendTransaction expects one transaction object")
		}
		return p.sendTransaction(ctx, params[0])
	case "personal_sign":
		if len(params) < 1 {
			return nil, clierr.New(clierr.CodeUsage, "personal_sign expects a message")
		}
		return p.personalSign(params...)
	default:
		return p.upstream.Request(ctx, method, params...)
	}
}

func (p *SignerProvider) sendTransaction(ctx context.Context, param any) (json.RawMessage, error) {
	var args TxArgs
	buf, err := json.Marshal(param)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "encode transaction", err)
	}
	if err := json.Unmarshal(buf, &args); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "decode transaction", err)
	}
	from := p.signer.Address()
	if args.From != "" && !strings.EqualFold(args.From, from.Hex()) {
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s cannot send from %s", from.Hex(), args.From))
	}
	if !common.IsHexAddress(args.To) {
		return nil, clierr.New(clierr.CodeUsage, "transaction recipient must be an address")
	}
	to := common.HexToAddress(args.To)

	var nonce hexutil.Uint64
	if err := p.call(ctx, &nonce, "eth_getTransactionCount", from.Hex(), "pending"); err != nil {
		return nil, err
	}
	var gasPrice hexutil.Big
	if err := p.call(ctx, &gasPrice, "eth_gasPrice"); err != nil {
		return nil, err
	}
	gas := uint64(NativeGasLimit)
	if args.Gas != "" {
		if gas, err = hexutil.DecodeUint64(args.Gas); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "decode gas limit", err)
		}
	}
	value := new(big.Int)
	if args.Value != "" {
		if value, err = hexutil.DecodeBig(args.Value); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "decode value", err)
		}
	}
	var data []byte
	if args.Data != "" && args.Data != "0x" {
		if data, err = hexutil.Decode(args.Data); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "decode calldata", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(nonce),
		GasPrice: gasPrice.ToInt(),
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := p.signer.SignTx(p.chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode signed transaction", err)
	}
	return p.upstream.Request(ctx, "eth_sendRawTransaction", hexutil.Encode(raw))
}

// personalSign takes [message, address] like injected wallets do. The message
// is hex when 0x prefixed and raw text otherwise.
func (p *SignerProvider) personalSign(params ...any) (json.RawMessage, error) {
	ms, ok := p.signer.(signer.MessageSigner)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, "signer cannot sign messages")
	}
	text, _ := params[0].(string)
	msg := []byte(text)
	if strings.HasPrefix(text, "0x") {
		decoded, err := hexutil.Decode(text)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "decode message", err)
		}
		msg = decoded
	}
	if len(params) > 1 {
		if addr, _ := params[1].(string); addr != "" && !strings.EqualFold(addr, ms.Address().Hex()) {
			return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s cannot sign for %s", ms.Address().Hex(), addr))
		}
	}
	sig, err := ms.SignMessage(msg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign message", err)
	}
	return json.Marshal(hexutil.Encode(sig))
}

func (p *SignerProvider) call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := p.upstream.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode "+method+" response", err)
	}
	return nil
}
