package sshserver

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// authorizedKeys holds the parsed public keys allowed to attach.
type authorizedKeys struct {
	keys []ssh.PublicKey
}

// loadAuthorizedKeys parses an OpenSSH authorized_keys file.
func loadAuthorizedKeys(path string) (*authorizedKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	auth := &authorizedKeys{}
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		key, _, _, remaining, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse authorized keys: %w", err)
		}
		auth.keys = append(auth.keys, key)
		rest = remaining
	}
	if len(auth.keys) == 0 {
		return nil, fmt.Errorf("no keys in %s", path)
	}
	return auth, nil
}

func (a *authorizedKeys) contains(key ssh.PublicKey) bool {
	if a == nil || key == nil {
		return false
	}
	marshaled := key.Marshal()
	for _, candidate := range a.keys {
		if bytes.Equal(candidate.Marshal(), marshaled) {
			return true
		}
	}
	return false
}
