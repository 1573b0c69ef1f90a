package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrDecrypt is returned when an encrypted credentials file cannot be opened with the configured key.
var ErrDecrypt = errors.New("failed to decrypt credentials file")

// ErrCorrupt is returned when the credentials file is not a valid document.
var ErrCorrupt = errors.New("failed to unmarshal credentials")

var _ Store = (*FileStore)(nil)

// FileStore implements Store using a JSON document on disk.
// The whole document is rewritten on every Set or Remove.
type FileStore struct {
	path    string
	key     *[32]byte
	nowFunc func() time.Time
	mu      sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithEncryptionKey seals the document with NaCl secretbox under key.
func WithEncryptionKey(key [32]byte) FileOption {
	return func(s *FileStore) {
		s.key = &key
	}
}

// WithFileNowFunc overrides the clock used to expire entries.
func WithFileNowFunc(now func() time.Time) FileOption {
	return func(s *FileStore) {
		s.nowFunc = now
	}
}

type fileDocument struct {
	Entries map[string]entry `json:"entries"`
}

// NewFileStore creates a FileStore at path, creating the parent directory if needed.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	s := &FileStore{path: path, nowFunc: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the location of the credentials document
func (s *FileStore) Path() string {
	return s.path
}

// Get retrieves a value by key
func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	e, ok := doc.Entries[key]
	if !ok || e.expired(s.nowFunc()) {
		return "", ErrNotFound
	}
	return e.Value, nil
}

// Set stores a value until expiresAt
func (s *FileStore) Set(key, value string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if unreadable(err) {
		// A document sealed under another key or truncated on disk is replaced
		doc, err = &fileDocument{Entries: make(map[string]entry)}, nil
	}
	if err != nil {
		return err
	}
	doc.Entries[key] = entry{Value: value, ExpiresAt: expiresAt}
	return s.save(doc)
}

// Remove deletes a key. The file is deleted once no entries remain, or when
// it can no longer be decrypted or parsed.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if unreadable(err) {
		return s.save(&fileDocument{Entries: make(map[string]entry)})
	}
	if err != nil {
		return err
	}
	if _, ok := doc.Entries[key]; !ok {
		return nil
	}
	delete(doc.Entries, key)
	return s.save(doc)
}

func (s *FileStore) load() (*fileDocument, error) {
	doc := &fileDocument{Entries: make(map[string]entry)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]entry)
	}
	return doc, nil
}

func unreadable(err error) bool {
	return errors.Is(err, ErrDecrypt) || errors.Is(err, ErrCorrupt)
}

func (s *FileStore) save(doc *fileDocument) error {
	now := s.nowFunc()
	for k, e := range doc.Entries {
		if e.expired(now) {
			delete(doc.Entries, k)
		}
	}

	if len(doc.Entries) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete credentials file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
