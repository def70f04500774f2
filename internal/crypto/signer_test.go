package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

var testBuyer = common.HexToAddress("0x0000000000000000000000000000000000000b01")

func TestSignAndVerifySale(t *testing.T) {
	s, err := NewReceiptSigner(testKey)
	require.NoError(t, err)

	price := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	sig, err := s.SignSale(7, testBuyer, price, 1)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sig, "0x"))
	require.Len(t, sig, 2+65*2)

	ok, err := VerifySale(s.Address(), 7, testBuyer, price, 1, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifySaleRejectsTamperedFields(t *testing.T) {
	s, err := NewReceiptSigner(testKey)
	require.NoError(t, err)

	price := big.NewInt(1000)
	sig, err := s.SignSale(7, testBuyer, price, 2)
	require.NoError(t, err)

	// Any altered field recovers a different address.
	ok, err := VerifySale(s.Address(), 8, testBuyer, price, 2, sig)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = VerifySale(s.Address(), 7, testBuyer, big.NewInt(999), 2, sig)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = VerifySale(s.Address(), 7, testBuyer, price, 3, sig)
	require.NoError(t, err)
	require.False(t, ok)

	other := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	ok, err = VerifySale(s.Address(), 7, other, price, 2, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySaleRejectsMalformedSignature(t *testing.T) {
	_, err := VerifySale(common.Address{}, 1, testBuyer, big.NewInt(1), 1, "0x1234")
	require.Error(t, err)

	_, err = VerifySale(common.Address{}, 1, testBuyer, big.NewInt(1), 1, "not-hex")
	require.Error(t, err)
}

func TestNewReceiptSignerRejectsBadKey(t *testing.T) {
	_, err := NewReceiptSigner("nope")
	require.Error(t, err)
}

func TestSealAndOpenKey(t *testing.T) {
	sealed, err := SealKey(testKey, "hunter2")
	require.NoError(t, err)

	opened, err := OpenKey(sealed, "hunter2")
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), opened)
}

func TestOpenKeyWrongPassword(t *testing.T) {
	sealed, err := SealKey(testKey, "hunter2")
	require.NoError(t, err)

	_, err = OpenKey(sealed, "wrong")
	require.Error(t, err)
}

func TestResolveEscrowKeyPrefersRaw(t *testing.T) {
	k, err := ResolveEscrowKey(EscrowKeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), k)
}

func TestResolveEscrowKeyFromSealedFile(t *testing.T) {
	sealed, err := SealKey(testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "escrow.key.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	k, err := ResolveEscrowKey(EscrowKeyConfig{
		SealedKeyPath: path,
		KeyPassword:   "hunter2",
	})
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), k)

	// Signer built from the resolved key reproduces the escrow address.
	s, err := NewReceiptSigner(k)
	require.NoError(t, err)
	want, err := NewReceiptSigner(testKey)
	require.NoError(t, err)
	require.Equal(t, want.Address(), s.Address())
}

func TestResolveEscrowKeyNoSource(t *testing.T) {
	_, err := ResolveEscrowKey(EscrowKeyConfig{})
	require.Error(t, err)
}
