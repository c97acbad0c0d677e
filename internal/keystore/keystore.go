package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// operatorFile is the on-disk JSON format for the node operator's encrypted
// signing key. There is exactly one operator identity per data directory —
// this is not a multi-account user wallet.
type operatorFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Address       string    `json:"address"`
}

// Keystore manages the encrypted operator key on disk.
type Keystore struct {
	path string
}

// New creates a keystore rooted at the given directory, creating it if needed.
func New(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) file() string {
	return filepath.Join(ks.path, "operator.key")
}

// Create encrypts and persists the operator seed. Fails if a key already exists.
func (ks *Keystore) Create(seed, password []byte, address string, params EncryptionParams) error {
	path := ks.file()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("operator key already exists at %s", path)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt operator seed: %w", err)
	}

	of := operatorFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Address:       address,
	}
	return ks.write(&of)
}

// Load decrypts and returns the operator seed.
func (ks *Keystore) Load(password []byte) ([]byte, error) {
	of, err := ks.read()
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(of.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt operator key: %w", err)
	}
	return seed, nil
}

// Address returns the operator's address without requiring the password.
func (ks *Keystore) Address() (string, error) {
	of, err := ks.read()
	if err != nil {
		return "", err
	}
	return of.Address, nil
}

// Exists reports whether an operator key has already been created.
func (ks *Keystore) Exists() bool {
	_, err := os.Stat(ks.file())
	return err == nil
}

func (ks *Keystore) write(of *operatorFile) error {
	data, err := json.MarshalIndent(of, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal operator key: %w", err)
	}
	return os.WriteFile(ks.file(), data, 0600)
}

func (ks *Keystore) read() (*operatorFile, error) {
	data, err := os.ReadFile(ks.file())
	if err != nil {
		return nil, fmt.Errorf("read operator key: %w", err)
	}
	var of operatorFile
	if err := json.Unmarshal(data, &of); err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	if of.Version != 1 {
		return nil, fmt.Errorf("unsupported operator key version: %d", of.Version)
	}
	return &of, nil
}
