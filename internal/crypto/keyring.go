package crypto

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "tallybook"
	keyName     = "db-encryption-key"
)

// ErrNoKey is returned when no database key has been stored yet.
var ErrNoKey = errors.New("no encryption key stored")

// Keyring provides secure storage for the database encryption key.
type Keyring interface {
	GetKey() (string, error)
	SetKey(password string) error
	DeleteKey() error
}

// NewKeyring returns a keyring backed by the operating system's secret
// service (Keychain, Secret Service, Credential Manager).
func NewKeyring() Keyring {
	return &systemKeyring{}
}

type systemKeyring struct{}

func (k *systemKeyring) GetKey() (string, error) {
	secret, err := keyring.Get(serviceName, keyName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoKey
		}
		return "", err
	}
	return secret, nil
}

func (k *systemKeyring) SetKey(password string) error {
	return keyring.Set(serviceName, keyName, password)
}

func (k *systemKeyring) DeleteKey() error {
	err := keyring.Delete(serviceName, keyName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
