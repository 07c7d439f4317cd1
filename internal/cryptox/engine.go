package cryptox

// Engine encrypts and decrypts fields against a Keyring. It holds no other
// state and is safe for concurrent use.
type Engine struct {
	keyring *Keyring
}

// NewEngine returns an Engine bound to kr.
func NewEngine(kr *Keyring) *Engine {
	return &Engine{keyring: kr}
}

// ActiveVersion returns the key version new fields are sealed with.
func (e *Engine) ActiveVersion() uint32 {
	return e.keyring.Active()
}

// HasVersion reports whether the keyring holds version.
func (e *Engine) HasVersion(version uint32) bool {
	return e.keyring.Has(version)
}

// Encrypt seals plaintext with the active key.
func (e *Engine) Encrypt(plaintext []byte) (*EncryptedField, error) {
	return e.EncryptWith(e.keyring.Active(), plaintext)
}

// EncryptWith seals plaintext with a specific key version. Used by rotation.
func (e *Engine) EncryptWith(version uint32, plaintext []byte) (*EncryptedField, error) {
	key, err := e.keyring.key(version)
	if err != nil {
		return nil, err
	}
	f, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	f.KeyVersion = version
	return f, nil
}

// Decrypt opens field with the key named by field.KeyVersion.
func (e *Engine) Decrypt(field *EncryptedField) ([]byte, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	key, err := e.keyring.key(field.KeyVersion)
	if err != nil {
		return nil, err
	}
	return Decrypt(field, key)
}
