package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"

	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
)

const (
	firstHardenedIndex = 1 << 31
	seedModifier       = "ed25519 seed"
)

type key struct {
	secret    []byte
	chainCode []byte
}

func masterKey(seed []byte) key {
	mac := hmac.New(sha512.New, []byte(seedModifier))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return key{secret: sum[:32], chainCode: sum[32:]}
}

// derive is SLIP-10 hardened child derivation; ed25519 has no public derivation
func (k key) derive(index uint32) key {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x0)
	data = append(data, k.secret...)
	data = binary.BigEndian.AppendUint32(data, index+firstHardenedIndex)

	mac := hmac.New(sha512.New, k.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	return key{secret: sum[:32], chainCode: sum[32:]}
}

// Emulator is a software stand-in for the hardware device. It derives ed25519 keys from a
// BIP-39 mnemonic with SLIP-10 so the whole pipeline can run without a physical device.
type Emulator struct {
	mu      sync.Mutex
	seed    []byte
	latency time.Duration
	closed  bool
}

type EmulatorOption func(*Emulator)

// WithLatency simulates the time a real device takes per exchange
func WithLatency(latency time.Duration) EmulatorOption {
	return func(e *Emulator) {
		e.latency = latency
	}
}

// NewEmulator validates the mnemonic and builds an emulated device
func NewEmulator(mnemonic, passphrase string, opts ...EmulatorOption) (*Emulator, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	emulator := &Emulator{seed: seed}
	for _, opt := range opts {
		opt(emulator)
	}
	return emulator, nil
}

func (e *Emulator) GetAddress(ctx context.Context, path models.DerivationPath, ss58Prefix uint16) (DeviceAddress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return DeviceAddress{}, ErrDeviceClosed
	}
	if err := path.Validate(); err != nil {
		return DeviceAddress{}, err
	}

	if e.latency > 0 {
		select {
		case <-time.After(e.latency):
		case <-ctx.Done():
			return DeviceAddress{}, ctx.Err()
		}
	}

	k := masterKey(e.seed)
	for _, index := range path {
		k = k.derive(index)
	}

	publicKey := ed25519.NewKeyFromSeed(k.secret).Public().(ed25519.PublicKey)
	address, err := EncodeSS58(publicKey, ss58Prefix)
	if err != nil {
		return DeviceAddress{}, err
	}

	logger.Debug("Device exchange for %s returned %s", path, address)

	return DeviceAddress{
		Address:   address,
		PublicKey: []byte(publicKey),
		Path:      path,
	}, nil
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
