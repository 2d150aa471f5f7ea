package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 150000

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// SaltSize and NonceSize are the lengths of the random values kept in
	// the meta record.
	SaltSize  = 16
	NonceSize = 12

	// obfuscationBase is interleaved with every password before derivation.
	obfuscationBase = "AI_TR_DEFAULT_SECRET_v1"
)

// DeriveKey derives the AES-256 key for password and salt. The result is
// deterministic.
func DeriveKey(password string, salt []byte) []byte {
	return deriveKey(password, salt, Iterations)
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}

// Mix interleaves a constant base string with password and returns
// "v1$<len>$<base64>". This is obfuscation, NOT key stretching: with an
// empty password the output is a constant compiled into every binary.
func Mix(password string) string {
	base := []rune(obfuscationBase)
	up := []rune(password)

	out := make([]rune, 0, len(base)+len(up))
	for i := 0; i < max(len(base), len(up)); i++ {
		if i < len(base) {
			out = append(out, base[i])
		}
		if i < len(up) {
			out = append(out, up[i])
		}
	}
	return "v1$" + strconv.Itoa(utf8.RuneCountInString(password)) + "$" + base64.StdEncoding.EncodeToString([]byte(string(out)))
}

func checksum(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
