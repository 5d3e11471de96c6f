// signer.go generalizes internal/arbitrage/eip712.go's Polymarket CTF
// Exchange order signer into a venue-parameterized one: the exchange
// contract address, chain id, and domain name are constructor arguments
// instead of package constants, so any EIP-712 venue can reuse it.
package client

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignedOrderPayload is an EIP-712 order ready to be shipped over the
// wire, generic across venues that use the Exchange-order typed-data
// shape (maker/taker/tokenId/amounts/expiration/nonce).
type SignedOrderPayload struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8

	Signature string
}

// OrderSigner signs orders for one venue's EIP-712 exchange contract.
type OrderSigner struct {
	privateKey    *ecdsa.PrivateKey
	signerAddress common.Address
	funderAddress common.Address
	chainID       int64
	exchangeAddr  common.Address
	domainName    string
	signatureType uint8
}

// NewOrderSigner builds a signer for one venue's exchange contract.
// domainName and exchangeAddr are the venue's EIP-712 domain parameters;
// chainID is the chain the exchange contract is deployed on.
func NewOrderSigner(privateKey *ecdsa.PrivateKey, signerAddr, funderAddr common.Address, domainName string, exchangeAddr common.Address, chainID int64, signatureType uint8) *OrderSigner {
	return &OrderSigner{
		privateKey:    privateKey,
		signerAddress: signerAddr,
		funderAddress: funderAddr,
		chainID:       chainID,
		exchangeAddr:  exchangeAddr,
		domainName:    domainName,
		signatureType: signatureType,
	}
}

// BuildOrder assembles an unsigned order from scaled integer amounts.
// Callers convert price/quantity to the venue's fixed-point integer
// representation before calling this; the signer never does float math.
func (s *OrderSigner) BuildOrder(tokenID *big.Int, side uint8, makerAmount, takerAmount *big.Int, expiration int64, feeRateBps int64) *SignedOrderPayload {
	return &SignedOrderPayload{
		Salt:          generateSalt(),
		Maker:         s.funderAddress,
		Signer:        s.signerAddress,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(expiration),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(feeRateBps),
		Side:          side,
		SignatureType: s.signatureType,
	}
}

// Sign computes the EIP-712 signature over order and stores it on the
// payload.
func (s *OrderSigner) Sign(order *SignedOrderPayload) error {
	typedData := s.buildTypedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return fmt.Errorf("client: hash eip712 domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return fmt.Errorf("client: hash eip712 message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	hash := crypto.Keccak256Hash(rawData)

	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return fmt.Errorf("client: sign order: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}
	order.Signature = fmt.Sprintf("0x%x", signature)
	return nil
}

func (s *OrderSigner) buildTypedData(order *SignedOrderPayload) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              s.domainName,
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.exchangeAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}
}

func generateSalt() *big.Int {
	return big.NewInt(rand.Int63())
}
