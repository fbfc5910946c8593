package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/ledger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

type scriptedDevice struct {
	calls []string
	err   error
	after int
}

func (d *scriptedDevice) GetAddress(_ context.Context, path models.DerivationPath, _ uint16) (ledger.DeviceAddress, error) {
	if d.err != nil && len(d.calls) >= d.after {
		return ledger.DeviceAddress{}, d.err
	}
	d.calls = append(d.calls, path.String())
	return ledger.DeviceAddress{
		Address:   fmt.Sprintf("addr-%s", path),
		PublicKey: make([]byte, 32),
		Path:      path,
	}, nil
}

func (d *scriptedDevice) Close() error { return nil }

var kusama = models.ChainConfig{ID: "kusama", Name: "Kusama", BIP44Path: "m/44'/434'/0'/0'/0'", SS58Prefix: 2}

func TestFetchDefaultRange(t *testing.T) {
	device := &scriptedDevice{}
	f := NewAddressFetcher(device, 3)

	accounts, err := f.FetchDefault(context.Background(), kusama, nil)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, []string{
		"m/44'/434'/0'/0'/0'",
		"m/44'/434'/1'/0'/0'",
		"m/44'/434'/2'/0'/0'",
	}, device.calls)
	assert.Equal(t, "m/44'/434'/2'/0'/0'", accounts[2].Path)
}

func TestFetchIndexedCartesianProduct(t *testing.T) {
	device := &scriptedDevice{}
	f := NewAddressFetcher(device, 0)

	accounts, err := f.FetchIndexed(context.Background(), kusama, []uint32{1, 2}, []uint32{0, 7}, nil)
	require.NoError(t, err)
	assert.Len(t, accounts, 4)
	assert.Contains(t, device.calls, "m/44'/434'/2'/0'/7'")
}

func TestFetchIndexedEmptyIsNotAnError(t *testing.T) {
	f := NewAddressFetcher(&scriptedDevice{}, 0)

	accounts, err := f.FetchIndexed(context.Background(), kusama, nil, []uint32{0}, nil)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestFetchIndexedRejectsIndexOutsideHardenedRange(t *testing.T) {
	device := &scriptedDevice{}
	f := NewAddressFetcher(device, 0)

	_, err := f.FetchIndexed(context.Background(), kusama, []uint32{1 << 31}, []uint32{0}, nil)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindFetch, syncerr.KindOf(err))
	assert.Empty(t, device.calls)
}

func TestFetchWrapsDeviceErrors(t *testing.T) {
	f := NewAddressFetcher(&scriptedDevice{err: ledger.ErrDeviceLocked}, 2)

	_, err := f.FetchDefault(context.Background(), kusama, nil)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindFetch, syncerr.KindOf(err))
	assert.True(t, errors.Is(err, ledger.ErrDeviceLocked))
}

func TestFetchRejectsBadPath(t *testing.T) {
	f := NewAddressFetcher(&scriptedDevice{}, 1)

	chain := kusama
	chain.BIP44Path = "m/44/434"
	_, err := f.FetchDefault(context.Background(), chain, nil)
	assert.Equal(t, syncerr.KindFetch, syncerr.KindOf(err))
}

func TestFetchChecksCancellationBeforeExchange(t *testing.T) {
	device := &scriptedDevice{}
	f := NewAddressFetcher(device, 2)

	token := cancel.NewToken()
	token.Cancel()

	_, err := f.FetchDefault(context.Background(), kusama, token.Predicate())
	assert.True(t, syncerr.IsCancelled(err))
	assert.Empty(t, device.calls)
}

func TestFetchContextCancellationIsCancellation(t *testing.T) {
	f := NewAddressFetcher(&scriptedDevice{err: context.Canceled}, 1)

	_, err := f.FetchDefault(context.Background(), kusama, nil)
	assert.True(t, syncerr.IsCancelled(err))
}
