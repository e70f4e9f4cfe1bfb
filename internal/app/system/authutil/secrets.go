// internal/app/system/authutil/secrets.go
// Package authutil hashes and compares the secrets the user directory keeps:
// passwords and secret-question answers.
package authutil

import (
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/text"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost for new hashes.
const DefaultCost = 12

var (
	costMu sync.RWMutex
	cost   = DefaultCost
)

// SetCost changes the bcrypt cost for new hashes. Values outside bcrypt's
// range are clamped. It returns the previous cost.
func SetCost(c int) int {
	costMu.Lock()
	defer costMu.Unlock()
	prev := cost
	cost = max(bcrypt.MinCost, min(c, bcrypt.MaxCost))
	return prev
}

func currentCost() int {
	costMu.RLock()
	defer costMu.RUnlock()
	return cost
}

// HashPassword hashes a secret with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), currentCost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plain-text secret with a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// DummyHash returns a fixed hash that matches no real secret. Comparing
// against it costs the same as comparing against a stored hash.
func DummyHash() string {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("\x00strataauth-dummy\x00"), currentCost())
		if err == nil {
			dummy = string(h)
		}
	})
	return dummy
}

// NormalizeAnswer canonicalizes a secret-question answer: whitespace runs
// collapse to one space and case and diacritics are folded, so "  Rose
// Tyler" and "rose tyler" hash alike.
func NormalizeAnswer(answer string) string {
	return text.Fold(strings.Join(strings.Fields(answer), " "))
}
