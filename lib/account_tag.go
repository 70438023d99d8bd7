package lib

import (
	"crypto/sha256"
	"encoding/hex"
)

// AccountTag is a stable identifier for a user on a server. It's used to name the state files.
func AccountTag(serverURL, username string) string {
	hasher := sha256.New()
	hasher.Write([]byte(username))
	hasher.Write([]byte(":"))
	hasher.Write([]byte(serverURL))
	hasher.Write([]byte("\n"))
	return hex.EncodeToString(hasher.Sum(nil))
}

// ShortTag keeps the first 16 characters of a tag
func ShortTag(tag string) string {
	if len(tag) <= 16 {
		return tag
	}
	return tag[0:16]
}
