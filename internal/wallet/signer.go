package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrClosed = errors.New("wallet: signer closed")
	ErrNoKey  = errors.New("wallet: no signing key configured")
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Domain is the EIP-712 domain the exchange contract verifies against.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// Order is the exchange order as it is hashed and sent to the venue.
// Amounts are base-unit integers rendered as decimal strings.
type Order struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
}

type SignedOrder struct {
	Order
	Signature string `json:"signature"`
	Hash      string `json:"-"`
}

type OrderParams struct {
	TokenID       string
	Side          string
	SizeUSD       decimal.Decimal
	Price         decimal.Decimal
	Nonce         uint64
	Expiration    time.Time
	FeeRateBps    int64
	SignatureType int
}

// Signer holds the wallet key in memory for the lifetime of the process.
// Only the derived address ever leaves it.
type Signer struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
	domain  Domain
}

func NewSigner(hexKey string, domain Domain) (*Signer, error) {
	key, err := parsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	if domain.VerifyingContract != "" && !common.IsHexAddress(domain.VerifyingContract) {
		return nil, fmt.Errorf("wallet: invalid verifying contract %q", domain.VerifyingContract)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		domain:  domain,
	}, nil
}

func (s *Signer) Address() string {
	return s.address.Hex()
}

// String never renders key material.
func (s *Signer) String() string {
	return "wallet.Signer(" + s.address.Hex() + ")"
}

// NewOrder converts a USD size at a price into exchange base units. A BUY
// gives USD and takes shares; a SELL is the mirror image.
func (s *Signer) NewOrder(p OrderParams) (Order, error) {
	tokenID := strings.TrimSpace(p.TokenID)
	if tokenID == "" {
		return Order{}, fmt.Errorf("wallet: token id is required")
	}
	if !p.Price.IsPositive() || p.Price.GreaterThan(decimal.NewFromInt(1)) {
		return Order{}, fmt.Errorf("wallet: price must be in (0, 1], got %s", p.Price)
	}
	if !p.SizeUSD.IsPositive() {
		return Order{}, fmt.Errorf("wallet: size must be > 0")
	}
	side := strings.ToUpper(strings.TrimSpace(p.Side))
	if side != "BUY" && side != "SELL" {
		return Order{}, fmt.Errorf("wallet: unknown side %q", p.Side)
	}

	base := decimal.NewFromInt(1_000_000)
	shares := p.SizeUSD.Div(p.Price)
	makerAmount := p.SizeUSD.Mul(base)
	takerAmount := shares.Mul(base)
	if side == "SELL" {
		makerAmount, takerAmount = takerAmount, makerAmount
	}
	exp := int64(0)
	if !p.Expiration.IsZero() {
		exp = p.Expiration.UTC().Unix()
	}
	salt := uuid.New()
	addr := s.address.Hex()
	return Order{
		Salt:          new(big.Int).SetBytes(salt[:]).String(),
		Maker:         addr,
		Signer:        addr,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   baseUnits(makerAmount),
		TakerAmount:   baseUnits(takerAmount),
		Expiration:    strconv.FormatInt(exp, 10),
		Nonce:         strconv.FormatUint(p.Nonce, 10),
		FeeRateBps:    strconv.FormatInt(p.FeeRateBps, 10),
		Side:          side,
		SignatureType: p.SignatureType,
	}, nil
}

// SignOrder builds and signs an order in one step.
func (s *Signer) SignOrder(p OrderParams) (SignedOrder, error) {
	order, err := s.NewOrder(p)
	if err != nil {
		return SignedOrder{}, err
	}
	return s.Sign(order)
}

func (s *Signer) Sign(order Order) (SignedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return SignedOrder{}, ErrClosed
	}
	hash, err := OrderHash(s.domain, order)
	if err != nil {
		return SignedOrder{}, err
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("wallet: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return SignedOrder{
		Order:     order,
		Signature: "0x" + hex.EncodeToString(sig),
		Hash:      "0x" + hex.EncodeToString(hash),
	}, nil
}

// Close wipes the key. Signing afterwards fails with ErrClosed.
func (s *Signer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return
	}
	words := s.key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	s.key = nil
}

// OrderHash is the EIP-712 digest of order under domain.
func OrderHash(domain Domain, order Order) ([]byte, error) {
	side := "0"
	if order.Side == "SELL" {
		side = "1"
	}
	td := apitypes.TypedData{
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
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: verifyingContract(domain.VerifyingContract),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          side,
			"signatureType": strconv.Itoa(order.SignatureType),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("wallet: typed data hash: %w", err)
	}
	return hash, nil
}

func verifyingContract(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return zeroAddress
	}
	return common.HexToAddress(addr).Hex()
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, ErrNoKey
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		// The underlying error never echoes the input.
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}
	return key, nil
}

func baseUnits(v decimal.Decimal) string {
	if v.IsNegative() {
		v = decimal.Zero
	}
	return v.Round(0).StringFixed(0)
}
