// Package registry — учётная книга сессий поверх SQLite. Хранит по одной записи
// на телефон: путь файла секрета, временные метки, метаданные аккаунта (JSON),
// отпечаток секрета, флаг шифрования, статус и заметки оператора. Схема
// мигрируется аддитивно: базовая таблица создаётся с минимальным набором колонок,
// недостающие колонки добавляются через ALTER TABLE без потери данных.
package registry

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	_ "github.com/mattn/go-sqlite3"

	"telegram-sessman/internal/infra/storage"
)

// Статусы записи.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// timeLayout — формат хранения временных меток (RFC3339, UTC).
const timeLayout = time.RFC3339

// Record — одна строка реестра.
type Record struct {
	Phone      string
	Path       string
	CreatedAt  time.Time
	LastUsed   time.Time
	Metadata   string // JSON-снимок аккаунта; пустая строка — нет данных
	SecretHash string
	Encrypted  bool
	Status     string
	Notes      string
}

// Stats — агрегаты по реестру.
type Stats struct {
	Total         int
	Active        int
	Inactive      int
	Encrypted     int
	Premium       int
	UsedLast24h   int
	UsedLast7d    int
	OldestCreated time.Time
	NewestCreated time.Time
}

// Registry — подключение к реестру. Потокобезопасен в пределах гарантий database/sql.
type Registry struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open открывает (и при необходимости создаёт) файл реестра по пути path.
// Подключение настраивается на WAL и busy_timeout, чтобы конкурирующие процессы
// ждали снятия блокировки вместо немедленной ошибки SQLITE_BUSY.
func Open(path string) (*Registry, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=20000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open registry")
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping registry")
	}

	r := &Registry{
		db: db,
		sb: sq.StatementBuilder.RunWith(db),
	}
	if err = r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close закрывает подключение к реестру.
func (r *Registry) Close() error {
	return r.db.Close()
}

// migrate создаёт базовую таблицу и аддитивно доводит схему до актуальной.
// Колонки, добавленные поздними версиями, навешиваются через ALTER TABLE,
// существующие строки получают значения по умолчанию.
func (r *Registry) migrate() error {
	const baseline = `
		CREATE TABLE IF NOT EXISTS sessions (
			phone      TEXT PRIMARY KEY,
			path       TEXT UNIQUE NOT NULL,
			created_at TEXT NOT NULL,
			last_used  TEXT NOT NULL
		)`
	if _, err := r.db.Exec(baseline); err != nil {
		return errors.Wrap(err, "create sessions table")
	}

	existing, err := r.columns("sessions")
	if err != nil {
		return err
	}

	additive := []struct {
		name string
		ddl  string
	}{
		{"metadata", "ALTER TABLE sessions ADD COLUMN metadata TEXT DEFAULT ''"},
		{"secret_hash", "ALTER TABLE sessions ADD COLUMN secret_hash TEXT DEFAULT ''"},
		{"encrypted", "ALTER TABLE sessions ADD COLUMN encrypted INTEGER DEFAULT 0"},
		{"status", "ALTER TABLE sessions ADD COLUMN status TEXT DEFAULT 'active'"},
		{"notes", "ALTER TABLE sessions ADD COLUMN notes TEXT DEFAULT ''"},
	}
	for _, col := range additive {
		if existing[col.name] {
			continue
		}
		if _, err = r.db.Exec(col.ddl); err != nil {
			return errors.Wrapf(err, "add column %s", col.name)
		}
	}
	return nil
}

// columns возвращает множество имён колонок таблицы через PRAGMA table_info.
func (r *Registry) columns(table string) (map[string]bool, error) {
	rows, err := r.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, errors.Wrap(err, "read table info")
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err = rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, errors.Wrap(err, "scan table info")
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Upsert вставляет или замещает запись сессии. Телефон — первичный ключ,
// путь уникален; повторная регистрация телефона перезаписывает строку.
func (r *Registry) Upsert(rec Record) error {
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.LastUsed.IsZero() {
		rec.LastUsed = rec.CreatedAt
	}

	_, err := r.sb.Insert("sessions").
		Options("OR REPLACE").
		Columns("phone", "path", "created_at", "last_used",
			"metadata", "secret_hash", "encrypted", "status", "notes").
		Values(rec.Phone, rec.Path,
			rec.CreatedAt.UTC().Format(timeLayout), rec.LastUsed.UTC().Format(timeLayout),
			rec.Metadata, rec.SecretHash, boolToInt(rec.Encrypted), rec.Status, rec.Notes).
		Exec()
	if err != nil {
		return errors.Wrapf(err, "upsert session %s", rec.Phone)
	}
	return nil
}

// Get возвращает запись по телефону. Отсутствие записи — (nil, nil).
func (r *Registry) Get(phone string) (*Record, error) {
	row := r.selectRecords().Where(sq.Eq{"phone": phone}).QueryRow()
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", phone)
	}
	return rec, nil
}

// GetByPath возвращает запись по пути файла секрета. Отсутствие — (nil, nil).
func (r *Registry) GetByPath(path string) (*Record, error) {
	row := r.selectRecords().Where(sq.Eq{"path": path}).QueryRow()
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session by path %s", path)
	}
	return rec, nil
}

// List возвращает записи, отсортированные по дате создания. Непустой status
// ограничивает выборку одним статусом.
func (r *Registry) List(status string) ([]Record, error) {
	q := r.selectRecords().OrderBy("created_at")
	if status != "" {
		q = q.Where(sq.Eq{"status": status})
	}

	rows, err := q.Query()
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan session")
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Delete удаляет запись по телефону. Возвращает true, если строка существовала.
func (r *Registry) Delete(phone string) (bool, error) {
	res, err := r.sb.Delete("sessions").Where(sq.Eq{"phone": phone}).Exec()
	if err != nil {
		return false, errors.Wrapf(err, "delete session %s", phone)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// Touch обновляет отметку последнего использования сессии.
func (r *Registry) Touch(phone string, at time.Time) error {
	_, err := r.sb.Update("sessions").
		Set("last_used", at.UTC().Format(timeLayout)).
		Where(sq.Eq{"phone": phone}).
		Exec()
	if err != nil {
		return errors.Wrapf(err, "touch session %s", phone)
	}
	return nil
}

// SetStatus переводит сессию в статус status.
func (r *Registry) SetStatus(phone, status string) error {
	_, err := r.sb.Update("sessions").
		Set("status", status).
		Where(sq.Eq{"phone": phone}).
		Exec()
	if err != nil {
		return errors.Wrapf(err, "set status for %s", phone)
	}
	return nil
}

// SetMetadata обновляет JSON-снимок аккаунта и отпечаток секрета.
func (r *Registry) SetMetadata(phone, metadata, secretHash string) error {
	q := r.sb.Update("sessions").
		Set("metadata", metadata).
		Where(sq.Eq{"phone": phone})
	if secretHash != "" {
		q = q.Set("secret_hash", secretHash)
	}
	if _, err := q.Exec(); err != nil {
		return errors.Wrapf(err, "set metadata for %s", phone)
	}
	return nil
}

// SetNotes замещает заметки оператора для сессии.
func (r *Registry) SetNotes(phone, notes string) error {
	_, err := r.sb.Update("sessions").
		Set("notes", notes).
		Where(sq.Eq{"phone": phone}).
		Exec()
	if err != nil {
		return errors.Wrapf(err, "set notes for %s", phone)
	}
	return nil
}

// SetEncrypted фиксирует режим хранения секрета и его новый путь с отпечатком.
func (r *Registry) SetEncrypted(phone string, encrypted bool, path, secretHash string) error {
	_, err := r.sb.Update("sessions").
		Set("encrypted", boolToInt(encrypted)).
		Set("path", path).
		Set("secret_hash", secretHash).
		Where(sq.Eq{"phone": phone}).
		Exec()
	if err != nil {
		return errors.Wrapf(err, "set encrypted for %s", phone)
	}
	return nil
}

// Stats собирает агрегаты по реестру одним SQL-запросом. Сравнение last_used
// строковое: метки RFC3339 в UTC упорядочены лексикографически. Признак Premium
// извлекается из JSON метаданных средствами SQLite.
func (r *Registry) Stats() (Stats, error) {
	var s Stats

	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour).Format(timeLayout)
	weekAgo := now.Add(-7 * 24 * time.Hour).Format(timeLayout)

	var oldest, newest sql.NullString
	row := r.sb.Select("COUNT(*)").
		Column("COALESCE(SUM(status = 'active'), 0)").
		Column("COALESCE(SUM(encrypted != 0), 0)").
		Column(sq.Expr("COALESCE(SUM(last_used >= ?), 0)", dayAgo)).
		Column(sq.Expr("COALESCE(SUM(last_used >= ?), 0)", weekAgo)).
		Column("MIN(created_at)").
		Column("MAX(created_at)").
		From("sessions").
		QueryRow()
	err := row.Scan(&s.Total, &s.Active, &s.Encrypted, &s.UsedLast24h, &s.UsedLast7d, &oldest, &newest)
	if err != nil {
		return s, errors.Wrap(err, "aggregate sessions")
	}
	s.Inactive = s.Total - s.Active

	if oldest.Valid {
		if s.OldestCreated, err = parseTime(oldest.String); err != nil {
			return s, err
		}
	}
	if newest.Valid {
		if s.NewestCreated, err = parseTime(newest.String); err != nil {
			return s, err
		}
	}

	premium := r.sb.Select("COUNT(*)").From("sessions").
		Where("json_valid(metadata) AND json_extract(metadata, '$.premium') = 1").
		QueryRow()
	if err = premium.Scan(&s.Premium); err != nil {
		return s, errors.Wrap(err, "count premium")
	}
	return s, nil
}

// selectRecords — общий SELECT со всеми колонками записи.
func (r *Registry) selectRecords() sq.SelectBuilder {
	return r.sb.Select("phone", "path", "created_at", "last_used",
		"metadata", "secret_hash", "encrypted", "status", "notes").
		From("sessions")
}

// rowScanner покрывает и *sql.Row, и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord читает одну строку реестра.
func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                 Record
		createdAt, lastUsed string
		encrypted           int
	)
	err := row.Scan(&rec.Phone, &rec.Path, &createdAt, &lastUsed,
		&rec.Metadata, &rec.SecretHash, &encrypted, &rec.Status, &rec.Notes)
	if err != nil {
		return nil, err
	}
	rec.Encrypted = encrypted != 0
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.LastUsed, err = parseTime(lastUsed); err != nil {
		return nil, err
	}
	return &rec, nil
}

// parseTime разбирает временную метку; пустая строка трактуется как нулевое время.
func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", value)
	}
	return t.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
