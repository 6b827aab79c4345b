// Файл crypto.go — симметричный шифр для секретов сессий в покое.
// Схема: AES-256-GCM, случайный 12-байтовый nonce приписывается к шифртексту
// спереди (blob = nonce ‖ ciphertext), чтобы расшифровка могла отделить его без
// дополнительных метаданных. Ключ либо выводится из парольной фразы оператора
// через argon2id (соль персистится рядом с секретами), либо генерируется случайно
// и показывается оператору один раз.

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/argon2"

	"telegram-sessman/internal/infra/storage"
)

// Параметры argon2id (рекомендации OWASP): 1 проход, 64 MiB, 4 потока, ключ 256 бит.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	saltLen = 16
	keyLen  = 32
)

// Cipher инкапсулирует готовый AEAD. Нулевое значение непригодно; создавайте через NewCipher.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher строит AES-256-GCM поверх 32-байтового ключа.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keyLen {
		return nil, errors.Errorf("secrets: key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "create gcm")
	}
	return &Cipher{aead: aead}, nil
}

// Seal шифрует plain и возвращает blob вида nonce ‖ ciphertext.
func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open расшифровывает blob, созданный Seal. Неверный ключ, усечённый файл или
// подмена дают ошибку проверки аутентификационного тега.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt")
	}
	return plain, nil
}

// DeriveKey выводит 256-битный ключ из парольной фразы и соли через argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// LoadKey интерпретирует значение SESSION_KEY. Строка из 64 hex-символов — это
// готовый 256-битный ключ: именно в таком виде оператору показывается
// сгенерированный ключ, и в таком же виде он возвращается после перезапуска.
// Любое другое значение считается парольной фразой и прогоняется через argon2id
// с солью из saltPath.
func LoadKey(value, saltPath string) ([]byte, error) {
	if key, err := hex.DecodeString(value); err == nil && len(key) == keyLen {
		return key, nil
	}
	salt, err := LoadOrCreateSalt(saltPath)
	if err != nil {
		return nil, err
	}
	return DeriveKey(value, salt), nil
}

// GenerateKey возвращает 32 случайных байта из CSPRNG.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return key, nil
}

// LoadOrCreateSalt читает соль из path или создаёт новую (16 байт) атомарной записью.
// Соль не секретна; файл всё равно получает владельческие права.
func LoadOrCreateSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != saltLen {
			return nil, errors.Errorf("secrets: salt file %s has invalid length %d", path, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read salt")
	}

	salt := make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}
	if err = storage.AtomicWriteFile(path, salt); err != nil {
		return nil, errors.Wrap(err, "persist salt")
	}
	return salt, nil
}

// Hash возвращает усечённый sha256-отпечаток секрета (16 hex-символов).
// Используется реестром для детекции смены секретного материала.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
