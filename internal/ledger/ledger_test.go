package ledger

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/ledger-sync/internal/models"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func alicePublicKey(t *testing.T) []byte {
	t.Helper()
	publicKey, err := hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	require.NoError(t, err)
	return publicKey
}

func TestEncodeSS58KnownAddresses(t *testing.T) {
	publicKey := alicePublicKey(t)

	cases := []struct {
		prefix  uint16
		address string
	}{
		{42, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"},
		{0, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"},
		{2, "HNZata7iMYWmk5RvZRTiAsSDhV8366zq2YGb3tLH5Upf74F"},
	}

	for _, tc := range cases {
		address, err := EncodeSS58(publicKey, tc.prefix)
		require.NoError(t, err)
		assert.Equal(t, tc.address, address, "prefix %d", tc.prefix)
	}
}

func TestSS58RoundTripTwoBytePrefix(t *testing.T) {
	publicKey := alicePublicKey(t)

	address, err := EncodeSS58(publicKey, 1284)
	require.NoError(t, err)

	decoded, prefix, err := DecodeSS58(address)
	require.NoError(t, err)
	assert.Equal(t, uint16(1284), prefix)
	assert.Equal(t, publicKey, decoded)
}

func TestDecodeSS58RejectsBadChecksum(t *testing.T) {
	_, _, err := DecodeSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.Error(t, err)
}

func TestEmulatorIsDeterministic(t *testing.T) {
	device, err := NewEmulator(testMnemonic, "")
	require.NoError(t, err)
	defer device.Close()

	path, err := models.ParsePath("m/44'/354'/0'/0'/0'")
	require.NoError(t, err)

	first, err := device.GetAddress(context.Background(), path, 0)
	require.NoError(t, err)
	second, err := device.GetAddress(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Len(t, first.PublicKey, 32)

	other, err := device.GetAddress(context.Background(), path.WithIndices(1, 0), 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)

	decoded, prefix, err := DecodeSS58(first.Address)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), prefix)
	assert.Equal(t, first.PublicKey, decoded)
}

func TestEmulatorRejectsInvalidMnemonic(t *testing.T) {
	_, err := NewEmulator("not a mnemonic", "")
	assert.Error(t, err)
}

func TestEmulatorClosed(t *testing.T) {
	device, err := NewEmulator(testMnemonic, "")
	require.NoError(t, err)
	require.NoError(t, device.Close())

	path, err := models.ParsePath("m/44'/354'/0'/0'/0'")
	require.NoError(t, err)
	_, err = device.GetAddress(context.Background(), path, 0)
	assert.ErrorIs(t, err, ErrDeviceClosed)
}

func TestEmulatorRejectsIndexOutsideHardenedRange(t *testing.T) {
	device, err := NewEmulator(testMnemonic, "")
	require.NoError(t, err)
	defer device.Close()

	path, err := models.ParsePath("m/44'/354'/0'/0'/0'")
	require.NoError(t, err)

	_, err = device.GetAddress(context.Background(), path.WithIndices(1<<31, 0), 0)
	assert.Error(t, err)
	_, err = device.GetAddress(context.Background(), path.WithIndices(0, 1<<31), 0)
	assert.Error(t, err)
}
