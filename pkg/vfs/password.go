package vfs

import "golang.org/x/crypto/bcrypt"

// PasswordHasher abstracts password hashing so the engine never sees
// plaintext storage decisions. Implementations must be deterministic in
// Check (same password, same stored hash, same answer) but may salt freely
// in Hash.
type PasswordHasher interface {
	// Hash derives a storable hash from a plaintext password.
	Hash(password string) (string, error)

	// Check reports whether password matches the stored hash.
	Check(password, hash string) bool
}

// BcryptHasher hashes passwords with bcrypt at the default cost.
type BcryptHasher struct{}

func (BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptHasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PlaintextHasher stores passwords as-is. Only for tests.
type PlaintextHasher struct{}

func (PlaintextHasher) Hash(password string) (string, error) { return password, nil }

func (PlaintextHasher) Check(password, hash string) bool { return password == hash }
