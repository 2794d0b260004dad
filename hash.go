package ctrdecrypt

import (
	"crypto/sha1"
	"crypto/sha256"
)

func sha256Hash(payload ...[]byte) []byte {
	hash := sha256.New()
	for _, p := range payload {
		hash.Write(p)
	}
	return hash.Sum(nil)
}

func sha1Hash(payload []byte) []byte {
	hash := sha1.New()
	hash.Write(payload)
	return hash.Sum(nil)
}
