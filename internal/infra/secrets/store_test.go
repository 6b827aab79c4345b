package secrets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	return c
}

func TestPersistLoadPlain(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	secret := []byte("mtproto session payload")
	path, err := store.Persist(secret, "+79990001122")
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if !strings.HasSuffix(path, SuffixPlain) {
		t.Fatalf("Persist() path = %q, want %q suffix", path, SuffixPlain)
	}

	loaded, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(loaded, secret) {
		t.Fatalf("Load() = %q, want %q", loaded, secret)
	}

	// Plaintext-файл читается как есть, байт в байт.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(raw, secret) {
		t.Fatal("plain file content differs from secret")
	}
}

func TestPersistLoadEncrypted(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), testCipher(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	secret := []byte("mtproto session payload")
	path, err := store.Persist(secret, "+79990001122")
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if !strings.HasSuffix(path, SuffixEncrypted) {
		t.Fatalf("Persist() path = %q, want %q suffix", path, SuffixEncrypted)
	}

	// На диске — шифртекст, не plaintext.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if bytes.Contains(raw, secret) {
		t.Fatal("encrypted file contains plaintext secret")
	}

	loaded, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(loaded, secret) {
		t.Fatalf("Load() = %q, want %q", loaded, secret)
	}
}

func TestPersistKeepsSingleVariant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	phone := "+79990001122"

	plain, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err = plain.Persist([]byte("v1"), phone); err != nil {
		t.Fatalf("Persist() plain error = %v", err)
	}

	encrypted, err := NewStore(dir, testCipher(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err = encrypted.Persist([]byte("v2"), phone); err != nil {
		t.Fatalf("Persist() encrypted error = %v", err)
	}

	// Перешифрование стёрло plaintext-вариант: файл ровно один.
	if _, statErr := os.Stat(filepath.Join(dir, phone+SuffixPlain)); !os.IsNotExist(statErr) {
		t.Fatalf("plain variant still exists: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, phone+SuffixEncrypted)); statErr != nil {
		t.Fatalf("encrypted variant missing: %v", statErr)
	}
}

func TestLoadEncryptedWithoutKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	phone := "+79990001122"

	encrypted, err := NewStore(dir, testCipher(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	path, err := encrypted.Persist([]byte("secret"), phone)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	plain, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err = plain.Load(path); !errors.Is(err, ErrCorruptSecret) {
		t.Fatalf("Load() error = %v, want ErrCorruptSecret", err)
	}
}

func TestLoadEncryptedWrongKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	phone := "+79990001122"

	first, err := NewStore(dir, testCipher(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	path, err := first.Persist([]byte("secret"), phone)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	second, err := NewStore(dir, testCipher(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err = second.Load(path); !errors.Is(err, ErrCorruptSecret) {
		t.Fatalf("Load() error = %v, want ErrCorruptSecret", err)
	}
}

func TestDiscoverAndRemove(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	phones := []string{"+79990000001", "+79990000002"}
	for _, phone := range phones {
		if _, err = store.Persist([]byte("s"), phone); err != nil {
			t.Fatalf("Persist(%s) error = %v", phone, err)
		}
	}

	paths, err := store.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(paths) != len(phones) {
		t.Fatalf("Discover() = %d paths, want %d", len(paths), len(phones))
	}

	if err = store.Remove(phones[0]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	paths, err = store.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("Discover() after remove = %d paths, want 1", len(paths))
	}
	// Повторное удаление — no-op.
	if err = store.Remove(phones[0]); err != nil {
		t.Fatalf("repeated Remove() error = %v", err)
	}
}

func TestBackupCopiesFiles(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	path, err := store.Persist([]byte("payload"), "+79990001122")
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	dir, copied, err := store.Backup([]string{path, filepath.Join(store.Dir(), "missing.session")})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if copied != 1 {
		t.Fatalf("Backup() copied = %d, want 1 (missing file skipped)", copied)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(path)))
	if err != nil {
		t.Fatalf("read backup copy: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("backup content = %q, want %q", data, "payload")
	}
}

func TestPhoneFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/data/sessions/+79990001122.session", "+79990001122"},
		{"/data/sessions/+79990001122.session.enc", "+79990001122"},
		{"+10000000000.session", "+10000000000"},
	}
	for _, tt := range tests {
		if got := PhoneFromPath(tt.path); got != tt.want {
			t.Fatalf("PhoneFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
