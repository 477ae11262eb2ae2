// Package signer loads the local signing key used for integration writes and
// wallet transfers.
package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// MessageSigner signs EIP-191 personal messages. Providers use it to answer
// personal_sign.
type MessageSigner interface {
	Signer
	SignMessage(msg []byte) ([]byte, error)
}
