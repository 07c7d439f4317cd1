package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/placementhub/vault/internal/common"
)

// ErrUnknownKeyVersion is returned when a field references a key the keyring does not hold.
var ErrUnknownKeyVersion = errors.New("unknown key version")

// Keyring holds versioned encryption keys. New fields are sealed with the
// active version; older versions stay available for decryption until a
// rotation has re-encrypted every field.
type Keyring struct {
	keys   map[uint32][]byte
	active uint32
}

// NewKeyring copies keys and validates that active is present.
func NewKeyring(keys map[uint32][]byte, active uint32) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: keyring is empty", ErrInvalidKey)
	}
	kr := &Keyring{keys: make(map[uint32][]byte, len(keys)), active: active}
	for v, k := range keys {
		if v == 0 {
			return nil, fmt.Errorf("%w: key version must be positive", ErrInvalidKey)
		}
		if len(k) != KeySize {
			return nil, fmt.Errorf("%w: version %d is %d bytes", ErrInvalidKey, v, len(k))
		}
		kr.keys[v] = slices.Clone(k)
	}
	if _, ok := kr.keys[active]; !ok {
		return nil, fmt.Errorf("%w: active version %d not in keyring", ErrInvalidKey, active)
	}
	return kr, nil
}

// ParseKeyring parses "version:base64key" pairs separated by commas, e.g.
// "1:q83v...,2:Zm9v...". A single bare base64 key is accepted as version 1.
func ParseKeyring(spec string, active uint32) (*Keyring, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: no keys configured", ErrInvalidKey)
	}

	keys := map[uint32][]byte{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		version := uint64(1)
		encoded := part
		if v, k, ok := strings.Cut(part, ":"); ok {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: bad version %q", ErrInvalidKey, v)
			}
			version, encoded = n, k
		}
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: version %d is not valid base64", ErrInvalidKey, version)
		}
		if _, dup := keys[uint32(version)]; dup {
			return nil, fmt.Errorf("%w: duplicate version %d", ErrInvalidKey, version)
		}
		keys[uint32(version)] = key
	}

	if active == 0 {
		for v := range keys {
			active = max(active, v)
		}
	}
	kr, err := NewKeyring(keys, active)
	for _, k := range keys {
		common.WipeByteArray(k)
	}
	return kr, err
}

// Active returns the version used for new encryptions.
func (k *Keyring) Active() uint32 {
	return k.active
}

// Versions returns the held key versions in ascending order.
func (k *Keyring) Versions() []uint32 {
	out := make([]uint32, 0, len(k.keys))
	for v := range k.keys {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Has reports whether version is held.
func (k *Keyring) Has(version uint32) bool {
	_, ok := k.keys[version]
	return ok
}

func (k *Keyring) key(version uint32) ([]byte, error) {
	key, ok := k.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyVersion, version)
	}
	return key, nil
}

// String never prints key material.
func (k *Keyring) String() string {
	return fmt.Sprintf("Keyring{versions=%v active=%d}", k.Versions(), k.active)
}
