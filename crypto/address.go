package crypto

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"lukechampine.com/blake3"
)

// AddressPrefix is the human-readable part of every encoded address.
const AddressPrefix = "lend"

// AddressLength is the byte length of an Address.
const AddressLength = 20

var errAddressLength = errors.New("crypto: address must be 20 bytes")

// Address identifies signers, records, mints and token custody accounts. The
// zero value means "no address".
type Address [AddressLength]byte

// BytesToAddress copies b into an Address. It fails unless b is exactly 20 bytes.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == Address{} }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Equal compares two addresses.
func (a Address) Equal(other Address) bool { return bytes.Equal(a[:], other[:]) }

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	return encoded
}

// DecodeAddress parses a bech32 address carrying the lend prefix. The empty
// string decodes to the zero address.
func DecodeAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Address{}, nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// MustDecodeAddress is DecodeAddress for constants and tests.
func MustDecodeAddress(s string) Address {
	addr, err := DecodeAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DeriveAddress deterministically maps a namespace and a list of seeds to an
// address. Seeds are length-prefixed so distinct seed lists never collide.
func DeriveAddress(namespace string, seeds ...[]byte) Address {
	h := blake3.New(32, nil)
	writeSeed(h, []byte(namespace))
	for _, seed := range seeds {
		writeSeed(h, seed)
	}
	sum := h.Sum(nil)
	var addr Address
	copy(addr[:], sum[:AddressLength])
	return addr
}

// Uint64Seed encodes a numeric seed for DeriveAddress.
func Uint64Seed(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func writeSeed(h *blake3.Hasher, seed []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(seed)))
	_, _ = h.Write(length[:])
	_, _ = h.Write(seed)
}
