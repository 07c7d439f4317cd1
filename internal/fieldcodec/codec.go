// Package fieldcodec maps typed plaintext scalars to encrypted fields and back.
//
// Each plaintext is prefixed with a one-byte type tag before encryption so a
// value written as a date can't be read back as a string. A nil input means
// "no value" and produces a nil field rather than an encrypted empty string.
package fieldcodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/placementhub/vault/internal/cryptox"
)

const (
	tagString byte = 's'
	tagDate   byte = 'd'
	tagTime   byte = 't'
)

// ErrTypeMismatch is returned when a field is decoded as the wrong scalar type.
var ErrTypeMismatch = errors.New("field type mismatch")

// Encryptor is the subset of cryptox.Engine used by the codec.
type Encryptor interface {
	Encrypt(plaintext []byte) (*cryptox.EncryptedField, error)
	Decrypt(field *cryptox.EncryptedField) ([]byte, error)
}

// Codec encodes scalars through an Encryptor.
type Codec struct {
	enc Encryptor
}

// New returns a Codec using enc.
func New(enc Encryptor) *Codec {
	return &Codec{enc: enc}
}

func (c *Codec) seal(tag byte, body string) (*cryptox.EncryptedField, error) {
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, tag)
	buf = append(buf, body...)
	return c.enc.Encrypt(buf)
}

func (c *Codec) open(field *cryptox.EncryptedField, tag byte) (string, error) {
	plain, err := c.enc.Decrypt(field)
	if err != nil {
		return "", err
	}
	if len(plain) == 0 || plain[0] != tag {
		return "", fmt.Errorf("%w: want %q", ErrTypeMismatch, tag)
	}
	return string(plain[1:]), nil
}

// EncodeString encrypts v. A nil v yields a nil field.
func (c *Codec) EncodeString(v *string) (*cryptox.EncryptedField, error) {
	if v == nil {
		return nil, nil
	}
	return c.seal(tagString, *v)
}

// DecodeString decrypts a field written by EncodeString. A nil field yields nil.
func (c *Codec) DecodeString(field *cryptox.EncryptedField) (*string, error) {
	if field == nil {
		return nil, nil
	}
	s, err := c.open(field, tagString)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeDate encrypts a civil date. A nil d yields a nil field.
func (c *Codec) EncodeDate(d *Date) (*cryptox.EncryptedField, error) {
	if d == nil {
		return nil, nil
	}
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, *d)
	}
	return c.seal(tagDate, d.String())
}

// DecodeDate decrypts a field written by EncodeDate.
func (c *Codec) DecodeDate(field *cryptox.EncryptedField) (*Date, error) {
	if field == nil {
		return nil, nil
	}
	s, err := c.open(field, tagDate)
	if err != nil {
		return nil, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodeTime encrypts an instant in RFC 3339 with nanoseconds, keeping its
// UTC offset so the decoded value has the same wall clock and offset.
func (c *Codec) EncodeTime(t *time.Time) (*cryptox.EncryptedField, error) {
	if t == nil {
		return nil, nil
	}
	return c.seal(tagTime, t.Format(time.RFC3339Nano))
}

// DecodeTime decrypts a field written by EncodeTime.
func (c *Codec) DecodeTime(field *cryptox.EncryptedField) (*time.Time, error) {
	if field == nil {
		return nil, nil
	}
	s, err := c.open(field, tagTime)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return &t, nil
}
