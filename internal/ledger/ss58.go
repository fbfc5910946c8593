package ledger

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	ss58ChecksumLength = 2
	publicKeyLength    = 32
)

var ss58Preimage = []byte("SS58PRE")

func ss58Checksum(payload []byte) []byte {
	hasher, _ := blake2b.New512(nil)
	hasher.Write(ss58Preimage)
	hasher.Write(payload)
	return hasher.Sum(nil)[:ss58ChecksumLength]
}

func ss58PrefixBytes(prefix uint16) ([]byte, error) {
	switch {
	case prefix < 64:
		return []byte{byte(prefix)}, nil
	case prefix < 16384:
		first := byte((prefix&0b1111_1100)>>2) | 0b0100_0000
		second := byte(prefix>>8) | byte((prefix&0b11)<<6)
		return []byte{first, second}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSS, prefix)
	}
}

// EncodeSS58 encodes a 32 byte public key with the given network prefix
func EncodeSS58(publicKey []byte, prefix uint16) (string, error) {
	if len(publicKey) != publicKeyLength {
		return "", fmt.Errorf("public key must be %d bytes, got %d", publicKeyLength, len(publicKey))
	}

	prefixBytes, err := ss58PrefixBytes(prefix)
	if err != nil {
		return "", err
	}

	payload := append(prefixBytes, publicKey...)
	return base58.Encode(append(payload, ss58Checksum(payload)...)), nil
}

// DecodeSS58 returns the public key and network prefix of an address
func DecodeSS58(address string) ([]byte, uint16, error) {
	raw := base58.Decode(address)
	if len(raw) == 0 {
		return nil, 0, fmt.Errorf("address %q is not valid base58", address)
	}

	var prefix uint16
	prefixLength := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return nil, 0, fmt.Errorf("address %q is truncated", address)
		}
		lower := (raw[0]<<2)|(raw[1]>>6)
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLength = 2
	default:
		return nil, 0, fmt.Errorf("address %q has a reserved prefix byte", address)
	}

	if len(raw) != prefixLength+publicKeyLength+ss58ChecksumLength {
		return nil, 0, fmt.Errorf("address %q has unexpected length %d", address, len(raw))
	}

	payload := raw[:prefixLength+publicKeyLength]
	if !bytes.Equal(ss58Checksum(payload), raw[prefixLength+publicKeyLength:]) {
		return nil, 0, fmt.Errorf("address %q has an invalid checksum", address)
	}

	return append([]byte{}, payload[prefixLength:]...), prefix, nil
}
