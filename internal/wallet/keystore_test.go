package wallet

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeystore returns a file-backed Keystore isolated to a temp directory.
// Using the FileBackend avoids OS keychain prompts in CI.
func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      "erc20-test",
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: func(string) (string, error) { return "testpass", nil },
	})
	require.NoError(t, err)
	return NewKeystore(ring)
}

// ---------------------------------------------------------------------------
// ParsePrivateKey
// ---------------------------------------------------------------------------

func TestParsePrivateKey(t *testing.T) {
	for _, in := range []string{
		testPrivKeyHex,
		"0x" + testPrivKeyHex,
		"0X" + testPrivKeyHex,
		"  0x" + testPrivKeyHex + "\n",
	} {
		key, err := ParsePrivateKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, common.HexToAddress(testSignerAddr), AddressOf(key))
	}
}

func TestParsePrivateKeyInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"prefix":     "0x",
		"short":      testPrivKeyHex[:62],
		"long":       testPrivKeyHex + "00",
		"not hex":    "zz" + testPrivKeyHex[2:],
		"zero":       "0000000000000000000000000000000000000000000000000000000000000000",
		"over order": "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePrivateKey(in)
			var signErr *SigningError
			require.ErrorAs(t, err, &signErr)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.NotContains(t, err.Error(), testPrivKeyHex[2:], "key material must not leak into errors")
		})
	}
}

// ---------------------------------------------------------------------------
// Keystore
// ---------------------------------------------------------------------------

func TestKeystoreRoundTrip(t *testing.T) {
	ks := testKeystore(t)

	addr, err := ks.Store("sender", "0x"+testPrivKeyHex)
	require.NoError(t, err)
	key, err := ParsePrivateKey(testPrivKeyHex)
	require.NoError(t, err)
	assert.Equal(t, AddressOf(key), addr)

	got, err := ks.Retrieve("sender")
	require.NoError(t, err)
	assert.Equal(t, testPrivKeyHex, got)

	require.NoError(t, ks.Delete("sender"))
	_, err = ks.Retrieve("sender")
	assert.Error(t, err)
}

func TestKeystoreStoreRejectsBadKey(t *testing.T) {
	ks := testKeystore(t)
	addr, err := ks.Store("bad", "0x1234")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Zero(t, addr)
	_, err = ks.Retrieve("bad")
	assert.Error(t, err, "a rejected key is not stored")
}

func TestKeystoreRetrieveMissing(t *testing.T) {
	ks := testKeystore(t)
	_, err := ks.Retrieve("nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain retrieve")
}

// ---------------------------------------------------------------------------
// ResolveKey
// ---------------------------------------------------------------------------

func TestResolveKeyLiteral(t *testing.T) {
	got, err := ResolveKey("0x"+testPrivKeyHex, nil)
	require.NoError(t, err)
	assert.Equal(t, "0x"+testPrivKeyHex, got)
}

func TestResolveKeyEnv(t *testing.T) {
	t.Setenv("ERC20_TEST_KEY", testPrivKeyHex)

	got, err := ResolveKey("env:ERC20_TEST_KEY", nil)
	require.NoError(t, err)
	assert.Equal(t, testPrivKeyHex, got)
}

func TestResolveKeyEnvMissing(t *testing.T) {
	_, err := ResolveKey("env:ERC20_TEST_KEY_UNSET_FOR_SURE", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERC20_TEST_KEY_UNSET_FOR_SURE")
}

func TestResolveKeyKeyring(t *testing.T) {
	ks := testKeystore(t)
	_, err := ks.Store("payer", testPrivKeyHex)
	require.NoError(t, err)

	got, err := ResolveKey("keyring:payer", ks)
	require.NoError(t, err)
	assert.Equal(t, testPrivKeyHex, got)
}

func TestResolveKeyKeyringWithoutKeystore(t *testing.T) {
	_, err := ResolveKey("keyring:payer", nil)
	assert.ErrorIs(t, err, ErrKeystoreUnavailable)
}
