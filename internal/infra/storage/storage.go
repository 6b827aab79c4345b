// Package storage — утилиты безопасной работы с локальными файлами.
// Здесь живут примитивы, на которые опираются хранилище секретов и реестр:
//   - EnsureDir — гарантирует наличие директории для целевого пути;
//   - AtomicWriteFile — атомарная запись файла с fsync данных и каталога;
//   - CopyFile — побайтовое копирование с сохранением ограниченных прав.
//
// Секреты сессий недопустимо оставлять в частично записанном состоянии,
// поэтому всякая запись идёт через временный файл и rename.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"telegram-sessman/internal/infra/logger"
)

// DefaultFilePerm — права итогового файла при атомарной записи: только владелец.
const DefaultFilePerm = 0o600

// DefaultDirPerm — права создаваемых каталогов: только владелец.
const DefaultDirPerm = 0o700

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает байты в файл path.
//
// Алгоритм: temp в той же директории → write → fsync(temp) → chmod(DefaultFilePerm)
// → close → rename → fsync(dir). Либо старый файл остаётся цел, либо новый записан
// полностью. os.Rename атомарен только в пределах одного файлового тома; fsync
// каталога выполняется best-effort.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = tmp.Chmod(DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Атомарная замена: на POSIX rename поверх существующего файла атомарен.
	if err = os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if dirFile, dirErr := os.Open(dir); dirErr == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", errSync) // best-effort
		}
		_ = dirFile.Close()
	}
	return nil
}

// CopyFile копирует файл src в dst и выставляет на копию права DefaultFilePerm.
// Используется при резервном копировании секретов: операция не трогает оригинал.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err = EnsureDir(dst); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err = out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("fsync %s: %w", dst, err)
	}
	return out.Close()
}
