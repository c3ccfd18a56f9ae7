package auth

import (
	"github.com/zalando/go-keyring"
)

const serviceName = "agsync"

// SecretStore keeps the consumer secret out of the on-disk cache by
// storing it in the system keyring, keyed by profile
type SecretStore struct {
	service string
}

// NewSecretStore creates a keyring-backed secret store
func NewSecretStore() *SecretStore {
	return &SecretStore{service: serviceName}
}

// Available tests whether the system keyring can be used
func (s *SecretStore) Available() bool {
	const probe = "agsync-keyring-probe"
	if err := keyring.Set(s.service, probe, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(s.service, probe)
	return true
}

// SaveSecret stores the consumer secret for a profile
func (s *SecretStore) SaveSecret(profile, secret string) error {
	return keyring.Set(s.service, profile+":apisecret", secret)
}

// LoadSecret retrieves the consumer secret for a profile
func (s *SecretStore) LoadSecret(profile string) (string, error) {
	return keyring.Get(s.service, profile+":apisecret")
}

// DeleteSecret removes the consumer secret for a profile
func (s *SecretStore) DeleteSecret(profile string) error {
	return keyring.Delete(s.service, profile+":apisecret")
}
