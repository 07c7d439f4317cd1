package common

import "crypto/rand"

// GenerateRandByteArray returns size bytes from the system CSPRNG. It backs
// every IV, data key and KDF salt the vault produces.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray zeroes key material and decrypted plaintext once it is no
// longer needed.
func WipeByteArray(b []byte) {
	clear(b)
}
