// Package ledger models the hardware signing device. The device has a single physical channel:
// callers must not run two exchanges at the same time, and the Emulator enforces this with a
// lock so misuse shows up as serialized exchanges instead of corrupted frames.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/kelsos/ledger-sync/internal/models"
)

var (
	ErrDeviceLocked  = errors.New("device is locked")
	ErrAppNotOpen    = errors.New("migration app is not open on the device")
	ErrDeviceClosed  = errors.New("device connection closed")
	ErrUnsupportedSS = errors.New("unsupported ss58 prefix")
)

// DeviceAddress is the answer to a single get-address exchange
type DeviceAddress struct {
	Address   string
	PublicKey []byte
	Path      models.DerivationPath
}

// PublicKeyHex returns the public key as 0x-prefixed hex
func (a DeviceAddress) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(a.PublicKey)
}

// Device is one hardware exchange at a time
type Device interface {
	GetAddress(ctx context.Context, path models.DerivationPath, ss58Prefix uint16) (DeviceAddress, error)
	Close() error
}
