package client

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderSignerSignRecoversSignerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey)

	s := NewOrderSigner(key, signerAddr, signerAddr, "Test Exchange", signerAddr, 137, 0)
	order := s.BuildOrder(big.NewInt(42), 0, big.NewInt(1_000_000), big.NewInt(2_000_000), 0, 0)

	require.NoError(t, s.Sign(order))
	require.NotEmpty(t, order.Signature)

	typedData := s.buildTypedData(order)
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	require.NoError(t, err)
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	require.NoError(t, err)
	rawData := []byte("\x19\x01" + string(domainSeparator) + string(messageHash))
	hash := crypto.Keccak256Hash(rawData)

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(order.Signature, "0x"))
	require.NoError(t, err)
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sigBytes)
	require.NoError(t, err)
	recovered := crypto.PubkeyToAddress(*pub)

	assert.Equal(t, signerAddr, recovered)
}

func TestOrderSignerTwoOrdersGetDistinctSalts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	s := NewOrderSigner(key, addr, addr, "Test Exchange", addr, 137, 0)

	a := s.BuildOrder(big.NewInt(1), 0, big.NewInt(1), big.NewInt(1), 0, 0)
	b := s.BuildOrder(big.NewInt(1), 0, big.NewInt(1), big.NewInt(1), 0, 0)
	assert.NotEqual(t, a.Salt, b.Salt)
}
