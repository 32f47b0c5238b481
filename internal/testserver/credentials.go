package testserver

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Low argon2id cost: the account exists for tests and local runs.
const (
	argonTime    = 1
	argonMemory  = 8 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// account keeps only the argon2id digest of the demo password, as a real backend would.
type account struct {
	email string
	salt  []byte
	hash  []byte
}

func newAccount(email, password string) account {
	salt := make([]byte, argonSaltLen)
	_, _ = rand.Read(salt)
	return account{
		email: email,
		salt:  salt,
		hash:  argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen),
	}
}

func (a account) verify(email, password string) bool {
	computed := argon2.IDKey([]byte(password), a.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1
	return subtle.ConstantTimeCompare(computed, a.hash) == 1 && emailOK
}
