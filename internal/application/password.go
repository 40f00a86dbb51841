package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPasswordHash         = errors.New("invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("incompatible password hash version")
)

// Argon2idParams tunes the argon2id key derivation.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher hashes and verifies passwords with the parameters it was
// constructed with. Verification reads the parameters from the stored hash so
// older hashes keep working after the parameters change.
type PasswordHasher struct {
	params Argon2idParams
}

// NewPasswordHasher returns a hasher using params. Zero fields take the defaults.
func NewPasswordHasher(params Argon2idParams) *PasswordHasher {
	if params.Memory == 0 {
		params.Memory = DefaultArgon2idParams.Memory
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2idParams.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2idParams.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultArgon2idParams.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultArgon2idParams.KeyLength
	}
	return &PasswordHasher{params: params}
}

// Hash derives an encoded hash in the $argon2id$v=..$m=..,t=..,p=..$salt$hash format.
func (h *PasswordHasher) Hash(password string) (string, error) {
	params := h.params
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// Verify compares password against an encoded hash.
func (h *PasswordHasher) Verify(hashedPassword, password string) error {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidPasswordHash
	}
	if version != argon2.Version {
		return ErrIncompatiblePasswordVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return ErrInvalidPasswordHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidPasswordHash
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidPasswordHash
	}

	comparison := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(decodedHash)))
	if subtle.ConstantTimeCompare(decodedHash, comparison) == 1 {
		return nil
	}
	return ErrInvalidCredentials
}
