package vfs

import "github.com/google/uuid"

// IDGenerator produces opaque unique identifiers (fsno, userno, ino).
//
// The generator is pluggable so tests can substitute a deterministic
// sequence. Production code uses UUIDGenerator.
type IDGenerator func() string

// UUIDGenerator generates random (version 4) UUID strings.
//
// Random UUIDs are statistically collision-free and non-guessable, and need
// no counter or state to be maintained or persisted.
func UUIDGenerator() string {
	return uuid.NewString()
}

// generateUnique draws identifiers from gen until isDuplicate rejects one.
//
// Generation is retried a fixed number of times before failing with a
// collision error. The bound turns an otherwise unbounded loop against a
// broken or pathological generator into a hard failure.
func generateUnique(gen IDGenerator, isDuplicate func(string) bool) (string, error) {
	for times := 4; times > 0; times-- {
		value := gen()
		if !isDuplicate(value) {
			return value, nil
		}
	}
	return "", errorf(ErrCollision, "Too many identifier collisions.")
}
