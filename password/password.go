package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MinLength is the shortest password accepted for new credentials.
const MinLength = 6

var (
	ErrTooShort      = errors.New("password_too_short")
	ErrInvalidHash   = errors.New("invalid_password_hash")
	ErrIncompatible  = errors.New("incompatible_argon2_version")
	defaultArgonTime = uint32(1)
)

// Argon2Params controls the cost of HashArgon2id.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the OWASP baseline for argon2id.
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Validate enforces the password policy.
func Validate(pass string) error {
	if len(pass) < MinLength {
		return ErrTooShort
	}
	return nil
}

// HashArgon2id returns a PHC formatted argon2id hash using DefaultArgon2Params.
func HashArgon2id(pass string) (string, error) {
	return HashArgon2idWithParams(pass, DefaultArgon2Params)
}

func HashArgon2idWithParams(pass string, p Argon2Params) (string, error) {
	if p.Iterations == 0 {
		p.Iterations = defaultArgonTime
	}
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(pass), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyArgon2id compares pass against a PHC formatted argon2id hash in constant time.
func VerifyArgon2id(phc, pass string) (bool, error) {
	p, salt, key, err := decodeArgon2id(phc)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(pass), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func decodeArgon2id(phc string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(phc, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatible
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

// HashBcrypt hashes a short secret (e.g. a one-time code) with bcrypt.
func HashBcrypt(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyBcrypt reports whether secret matches hash. A mismatch is (false, nil).
func VerifyBcrypt(hash, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// IsBcryptHash reports whether h looks like a modular-crypt bcrypt hash.
func IsBcryptHash(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}
