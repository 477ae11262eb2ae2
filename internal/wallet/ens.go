package wallet

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/registry"
)

// NameResolver maps an ENS-style name to an address. A zero address with a
// nil error means the name has no address record.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (common.Address, error)
}

var (
	ensRegistryABI = mustABI(registry.ENSRegistryABI)
	ensResolverABI = mustABI(registry.ENSResolverABI)
)

// ENSResolver resolves names through the ENS registry on the provider's chain.
type ENSResolver struct {
	provider Provider
	registry common.Address
}

func NewENSResolver(provider Provider) *ENSResolver {
	return &ENSResolver{provider: provider, registry: common.HexToAddress(registry.ENSRegistryAddress)}
}

func (r *ENSResolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	node := Namehash(name)
	resolver, err := r.callAddress(ctx, ensRegistryABI, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, err
	}
	if resolver == (common.Address{}) {
		return common.Address{}, nil
	}
	return r.callAddress(ctx, ensResolverABI, resolver, "addr", node)
}

func (r *ENSResolver) callAddress(ctx context.Context, parsed abi.ABI, to common.Address, method string, node common.Hash) (common.Address, error) {
	data, err := parsed.Pack(method, node)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	out, err := ethCall(ctx, r.provider, to, data)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "ens "+method, err)
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	values, err := parsed.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "decode ens "+method, err)
	}
	addr, _ := values[0].(common.Address)
	return addr, nil
}

// Namehash implements the ENS name hashing scheme.
func Namehash(name string) common.Hash {
	var node common.Hash
	clean := strings.ToLower(strings.Trim(strings.TrimSpace(name), "."))
	if clean == "" {
		return node
	}
	labels := strings.Split(clean, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(crypto.Keccak256(node.Bytes(), labelHash))
	}
	return node
}

func ethCall(ctx context.Context, provider Provider, to common.Address, data []byte) ([]byte, error) {
	raw, err := provider.Request(ctx, "eth_call", map[string]string{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}, "latest")
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
