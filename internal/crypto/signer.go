package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// receiptTypeHash is the keccak256 of the canonical receipt type string,
// mixed into every digest so receipts cannot collide with other signed
// payloads from the same key.
var receiptTypeHash = ethcrypto.Keccak256(
	[]byte("SaleReceipt(uint64 itemId,address buyer,uint256 price,uint64 quantity)"),
)

// ReceiptSigner signs ListingSold receipts with the escrow identity's
// secp256k1 key. Observers verify the signature against the escrow address
// instead of trusting the transport.
type ReceiptSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewReceiptSigner creates a signer from a hex-encoded private key.
func NewReceiptSigner(privateKeyHex string) (*ReceiptSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid escrow key: %w", err)
	}
	return &ReceiptSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the escrow address derived from the signing key.
func (s *ReceiptSigner) Address() common.Address {
	return s.address
}

// saleDigest builds the keccak256 digest over the receipt fields.
func saleDigest(itemID uint64, buyer common.Address, price *big.Int, quantity uint64) []byte {
	var itemBuf, qtyBuf [8]byte
	binary.BigEndian.PutUint64(itemBuf[:], itemID)
	binary.BigEndian.PutUint64(qtyBuf[:], quantity)

	var priceBuf [32]byte
	price.FillBytes(priceBuf[:])

	return ethcrypto.Keccak256(
		receiptTypeHash,
		itemBuf[:],
		buyer.Bytes(),
		priceBuf[:],
		qtyBuf[:],
	)
}

// SignSale signs the receipt digest for a settled listing, returning the
// 65-byte [R || S || V] signature hex encoded with a 0x prefix.
func (s *ReceiptSigner) SignSale(itemID uint64, buyer common.Address, price *big.Int, quantity uint64) (string, error) {
	sig, err := ethcrypto.Sign(saleDigest(itemID, buyer, price, quantity), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign sale receipt: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// VerifySale reports whether sigHex is a valid receipt signature from the
// given escrow address over the receipt fields.
func VerifySale(escrow common.Address, itemID uint64, buyer common.Address, price *big.Int, quantity uint64, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("crypto: decode receipt signature: %w", err)
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("crypto: expected 65-byte signature, got %d", len(sig))
	}

	pub, err := ethcrypto.SigToPub(saleDigest(itemID, buyer, price, quantity), sig)
	if err != nil {
		return false, fmt.Errorf("crypto: recover receipt signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub) == escrow, nil
}
