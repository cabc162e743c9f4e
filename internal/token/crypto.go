package token

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving the token file key.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2SaltLen = 16

	sealedFormatVersion = 1

	// Bounds accepted when reading parameters back from disk.
	maxKDFTime   = 16
	maxKDFMemory = 1 << 21 // 2 GB
)

// sealed is the on-disk JSON structure of an encrypted token file.
type sealed struct {
	V       int    `json:"v"`
	KDF     string `json:"kdf"`
	Time    uint32 `json:"t"`
	Memory  uint32 `json:"m"`
	Threads uint8  `json:"p"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Cipher  []byte `json:"cipher"`
}

// kdfParams lets tests trade strength for speed.
type kdfParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

var defaultKDF = kdfParams{time: argon2Time, memory: argon2Memory, threads: argon2Threads}

func deriveKey(passphrase string, salt []byte, p kdfParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.time, p.memory, p.threads, chacha20poly1305.KeySize)
}

// seal encrypts raw with a key derived from passphrase.
func seal(passphrase string, raw []byte, p kdfParams) ([]byte, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt, p))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return json.Marshal(sealed{
		V:       sealedFormatVersion,
		KDF:     "argon2id",
		Time:    p.time,
		Memory:  p.memory,
		Threads: p.threads,
		Salt:    salt,
		Nonce:   nonce,
		Cipher:  aead.Seal(nil, nonce, raw, salt),
	})
}

// open reverses seal.
func open(passphrase string, blob []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, ErrWrongPassphrase
	}
	if s.V > sealedFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.V)
	}
	if s.KDF != "argon2id" || len(s.Salt) == 0 {
		return nil, ErrWrongPassphrase
	}
	if !validKDF(s.Time, s.Memory, s.Threads) {
		return nil, ErrWrongPassphrase
	}

	key := deriveKey(passphrase, s.Salt, kdfParams{time: s.Time, memory: s.Memory, threads: s.Threads})
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	raw, err := aead.Open(nil, s.Nonce, s.Cipher, s.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return raw, nil
}

// validKDF reports whether parameters read from a file are safe to hand to
// argon2, which panics on a zero thread count and allocates memory KiB.
func validKDF(time, memory uint32, threads uint8) bool {
	if time == 0 || time > maxKDFTime || threads == 0 {
		return false
	}
	return memory >= 8*uint32(threads) && memory <= maxKDFMemory
}
