package password

import "golang.org/x/crypto/bcrypt"

// DefaultCost matches the work factor used by existing school accounts.
const DefaultCost = 12

// Hasher hashes and verifies credentials with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher builds a Hasher, clamping invalid costs to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt digest of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Compare reports whether plaintext matches digest. Malformed digests never match.
func (h *Hasher) Compare(digest, plaintext string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
