// Package credpool — пул API-учёток приложения с ротацией по лимиту использования.
// Каждая учётка несёт счётчик обращений и отметку последнего использования; учётка
// пригодна, пока счётчик ниже потолка, либо когда с последнего использования прошло
// окно «остывания» (тогда счётчик сбрасывается). Выбор — first-fit в порядке
// объявления, без весов и рандомизации: это грубое размазывание нагрузки, а не
// планировщик, и честности между долгоживущими сессиями он не гарантирует.
//
// Счётчики персистятся в bbolt, чтобы перезапуск процесса не обнулял бюджет
// скорости. Персистентность best-effort: ошибка записи логируется и не блокирует
// выдачу учётки.
package credpool

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/storage"
)

// ErrPoolExhausted возвращается, когда каждая учётка упёрлась в потолок и ни одна
// не остыла. Оператору остаётся подождать окончания окна.
var ErrPoolExhausted = errors.New("credpool: all credentials have reached their usage ceiling")

// bucketName — bbolt-бакет с JSON-состоянием счётчиков, ключ — API ID.
var bucketName = []byte("credentials")

// usage — изменяемое состояние одной учётки.
type usage struct {
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// Option настраивает пул при создании.
type Option func(*Pool)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool хранит учётки в порядке объявления и их счётчики. Потокобезопасен.
type Pool struct {
	mu sync.Mutex

	creds    []config.Credential
	usage    map[int]*usage
	ceiling  int
	cooldown time.Duration

	db  *bbolt.DB // nil — без персистентности
	now func() time.Time
}

// New создаёт пул поверх статически сконфигурированных учёток. ceiling — потолок
// счётчика, cooldown — окно остывания, после которого счётчик сбрасывается.
func New(creds []config.Credential, ceiling int, cooldown time.Duration, opts ...Option) *Pool {
	if ceiling <= 0 {
		ceiling = 1
	}
	p := &Pool{
		creds:    append([]config.Credential(nil), creds...),
		usage:    make(map[int]*usage, len(creds)),
		ceiling:  ceiling,
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, c := range p.creds {
		p.usage[c.ID] = &usage{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open создаёт пул и подключает персистентное состояние счётчиков из bbolt-файла
// statePath. Сохранённые счётчики восстанавливаются для известных учёток; записи
// про учётки, выведенные из конфигурации, игнорируются.
func Open(creds []config.Credential, ceiling int, cooldown time.Duration,
	statePath string, opts ...Option) (*Pool, error) {
	p := New(creds, ceiling, cooldown, opts...)

	if err := storage.EnsureDir(statePath); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(statePath, storage.DefaultFilePerm, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	p.db = db

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		for _, c := range p.creds {
			raw := b.Get([]byte(strconv.Itoa(c.ID)))
			if raw == nil {
				continue
			}
			var u usage
			if jsonErr := json.Unmarshal(raw, &u); jsonErr != nil {
				logger.Warnf("credpool: corrupt state for credential %d: %v", c.ID, jsonErr)
				continue
			}
			*p.usage[c.ID] = u
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// Acquire возвращает первую пригодную учётку в порядке объявления: счётчик ниже
// потолка либо остывшая (счётчик предварительно сбрасывается). Счётчик выбранной
// учётки инкрементируется, отметка времени обновляется, состояние персистится.
// Если пригодных нет — ErrPoolExhausted.
func (p *Pool) Acquire() (config.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, c := range p.creds {
		u := p.usage[c.ID]

		cooled := !u.LastUsed.IsZero() && now.Sub(u.LastUsed) > p.cooldown
		if u.Count >= p.ceiling && !cooled {
			continue
		}
		if cooled {
			u.Count = 0
		}
		u.Count++
		u.LastUsed = now
		p.persistLocked(c.ID, u)
		logger.Debugf("credpool: using credential %d (count=%d)", c.ID, u.Count)
		return c, nil
	}
	return config.Credential{}, ErrPoolExhausted
}

// Usage возвращает снимок счётчика учётки (для статистики и тестов).
func (p *Pool) Usage(id int) (count int, lastUsed time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.usage[id]; ok {
		return u.Count, u.LastUsed
	}
	return 0, time.Time{}
}

// Size возвращает число учёток в пуле.
func (p *Pool) Size() int {
	return len(p.creds)
}

// Close закрывает персистентное хранилище счётчиков, если оно было подключено.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// persistLocked сохраняет состояние учётки в bbolt. Вызывающий держит mu.
// Ошибки не фатальны: счётчики переживут потерю одной записи.
func (p *Pool) persistLocked(id int, u *usage) {
	if p.db == nil {
		return
	}
	raw, err := json.Marshal(u)
	if err != nil {
		logger.Warnf("credpool: marshal state for credential %d: %v", id, err)
		return
	}
	err = p.db.Update(func(tx *bbolt.Tx) error {
		b, bErr := tx.CreateBucketIfNotExists(bucketName)
		if bErr != nil {
			return bErr
		}
		return b.Put([]byte(strconv.Itoa(id)), raw)
	})
	if err != nil {
		logger.Warnf("credpool: persist state for credential %d: %v", id, err)
	}
}
