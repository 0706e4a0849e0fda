package file

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"porter/internal/repository"
)

const (
	keySize   = 32
	nonceSize = 24
)

// sealedPrefix marks a file whose contents are a secretbox-sealed token.
var sealedPrefix = []byte("sealed:v1:")

var (
	// ErrInvalidKey is returned when the configured key is not 32 bytes.
	ErrInvalidKey = errors.New("credential key must be 32 bytes")

	// ErrUnsealable is returned when a sealed file cannot be opened with the configured key.
	ErrUnsealable = errors.New("stored credential cannot be decrypted")
)

// CredentialRepository stores the session token in a single file.
// Writes go through a temporary file and a rename so a crash never leaves a
// half-written token behind.
type CredentialRepository struct {
	mu   sync.Mutex
	path string
	key  *[keySize]byte
}

// NewCredentialRepository creates a file-backed credential repository. When
// key is non-empty the token is sealed with NaCl secretbox.
func NewCredentialRepository(path string, key []byte) (*CredentialRepository, error) {
	r := &CredentialRepository{path: path}
	if len(key) > 0 {
		if len(key) != keySize {
			return nil, ErrInvalidKey
		}
		r.key = new([keySize]byte)
		copy(r.key[:], key)
	}
	return r, nil
}

// Save writes the token.
func (r *CredentialRepository) Save(ctx context.Context, token string) error {
	data, err := r.seal([]byte(token))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

// Load reads the token.
func (r *CredentialRepository) Load(ctx context.Context) (string, error) {
	r.mu.Lock()
	data, err := os.ReadFile(r.path)
	r.mu.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	token, err := r.open(data)
	if err != nil {
		return "", err
	}
	if len(token) == 0 {
		return "", repository.ErrNotFound
	}
	return string(token), nil
}

// Clear removes the file.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (r *CredentialRepository) seal(plain []byte) ([]byte, error) {
	if r.key == nil {
		return plain, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, r.key)

	out := make([]byte, 0, len(sealedPrefix)+base64.StdEncoding.EncodedLen(len(box)))
	out = append(out, sealedPrefix...)
	return base64.StdEncoding.AppendEncode(out, box), nil
}

func (r *CredentialRepository) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedPrefix) {
		if r.key != nil {
			return nil, ErrUnsealable
		}
		return data, nil
	}
	if r.key == nil {
		return nil, ErrUnsealable
	}

	box, err := base64.StdEncoding.DecodeString(string(data[len(sealedPrefix):]))
	if err != nil || len(box) < nonceSize {
		return nil, ErrUnsealable
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, r.key)
	if !ok {
		return nil, ErrUnsealable
	}
	return plain, nil
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)
