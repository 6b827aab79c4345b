package secrets

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	c := testCipher(t)
	plain := []byte("session bytes")

	blob, err := c.Seal(plain)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains(blob, plain) {
		t.Fatal("sealed blob contains plaintext")
	}

	got, err := c.Open(blob)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("Open() = %q, want %q", got, plain)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	t.Parallel()

	c := testCipher(t)
	blob, err := c.Seal([]byte("session bytes"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	blob[len(blob)-1] ^= 0xff
	if _, err = c.Open(blob); err == nil {
		t.Fatal("Open() accepted tampered blob")
	}
}

func TestOpenTooShort(t *testing.T) {
	t.Parallel()

	c := testCipher(t)
	if _, err := c.Open([]byte("short")); err == nil {
		t.Fatal("Open() accepted truncated blob")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("passphrase", salt)
	k2 := DeriveKey("passphrase", salt)
	if !bytes.Equal(k1, k2) {
		t.Fatal("DeriveKey() is not deterministic for same inputs")
	}
	if bytes.Equal(k1, DeriveKey("other", salt)) {
		t.Fatal("DeriveKey() ignores passphrase")
	}
	if bytes.Equal(k1, DeriveKey("passphrase", []byte("fedcba9876543210"))) {
		t.Fatal("DeriveKey() ignores salt")
	}
	if len(k1) != keyLen {
		t.Fatalf("DeriveKey() len = %d, want %d", len(k1), keyLen)
	}
}

func TestLoadKeyHexSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	phone := "+79990001122"
	secret := []byte("session payload")

	// Первый запуск: ключ сгенерирован и показан оператору в hex.
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	shown := hex.EncodeToString(key)

	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	store, err := NewStore(dir, cipher)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err = store.Persist(secret, phone); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	// Перезапуск: оператор подставляет сохранённый hex в SESSION_KEY.
	restored, err := LoadKey(shown, filepath.Join(dir, ".salt"))
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if !bytes.Equal(restored, key) {
		t.Fatal("LoadKey() did not restore the generated key from its hex form")
	}

	cipher2, err := NewCipher(restored)
	if err != nil {
		t.Fatalf("NewCipher() after restart error = %v", err)
	}
	store2, err := NewStore(dir, cipher2)
	if err != nil {
		t.Fatalf("NewStore() after restart error = %v", err)
	}
	got, _, err := store2.LoadByPhone(phone)
	if err != nil {
		t.Fatalf("LoadByPhone() after restart error = %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("secret after restart = %q, want %q", got, secret)
	}
}

func TestLoadKeyPassphraseFallback(t *testing.T) {
	t.Parallel()

	saltPath := filepath.Join(t.TempDir(), ".salt")

	k1, err := LoadKey("correct horse battery staple", saltPath)
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if len(k1) != keyLen {
		t.Fatalf("key len = %d, want %d", len(k1), keyLen)
	}
	k2, err := LoadKey("correct horse battery staple", saltPath)
	if err != nil {
		t.Fatalf("second LoadKey() error = %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("passphrase key is not stable across calls with the same salt")
	}

	// 64 символа, но не hex: трактуется как парольная фраза, а не ключ.
	notHex := strings.Repeat("z", 64)
	k3, err := LoadKey(notHex, saltPath)
	if err != nil {
		t.Fatalf("LoadKey(non-hex) error = %v", err)
	}
	if len(k3) != keyLen {
		t.Fatalf("non-hex key len = %d, want %d", len(k3), keyLen)
	}
}

func TestLoadOrCreateSaltStable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".salt")

	first, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateSalt() error = %v", err)
	}
	if len(first) != saltLen {
		t.Fatalf("salt len = %d, want %d", len(first), saltLen)
	}

	second, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateSalt() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("salt changed between reads")
	}
}

func TestHashStableAndTruncated(t *testing.T) {
	t.Parallel()

	h := Hash([]byte("data"))
	if len(h) != 16 {
		t.Fatalf("Hash() len = %d, want 16", len(h))
	}
	if h != Hash([]byte("data")) {
		t.Fatal("Hash() is not deterministic")
	}
	if h == Hash([]byte("other")) {
		t.Fatal("Hash() collides on different inputs")
	}
}
