package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// GuestStore хранит журналы выданных вопросов для гостевых устройств.
// Аналог browser-local хранилища: по одному JSON-файлу на устройство,
// без какой-либо серверной базы. Данные устройства никогда не сливаются
// с данными других устройств.
type GuestStore struct {
	dir string
	mu  sync.Mutex
}

// guestState — содержимое файла устройства: наборы выданных вопросов по предметам
type guestState struct {
	Subjects  map[string][]uint `json:"subjects"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewGuestStore создает хранилище гостевых журналов в каталоге dir
func NewGuestStore(dir string) (*GuestStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("guest store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create guest store directory: %w", err)
	}
	return &GuestStore{dir: dir}, nil
}

// validDeviceID отсекает идентификаторы, которые нельзя безопасно
// использовать как имя файла
func validDeviceID(deviceID string) bool {
	if deviceID == "" || len(deviceID) > 64 {
		return false
	}
	for _, r := range deviceID {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *GuestStore) path(deviceID string) string {
	return filepath.Join(s.dir, deviceID+".json")
}

// load читает состояние устройства. Отсутствующий файл — пустое состояние.
func (s *GuestStore) load(deviceID string) (*guestState, error) {
	data, err := os.ReadFile(s.path(deviceID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &guestState{Subjects: make(map[string][]uint)}, nil
		}
		return nil, fmt.Errorf("failed to read guest state: %w", err)
	}

	var state guestState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode guest state: %w", err)
	}
	if state.Subjects == nil {
		state.Subjects = make(map[string][]uint)
	}
	return &state, nil
}

// save записывает состояние атомарно: во временный файл с последующим rename
func (s *GuestStore) save(deviceID string, state *guestState) error {
	state.UpdatedAt = time.Now()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode guest state: %w", err)
	}

	tmp := s.path(deviceID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write guest state: %w", err)
	}
	return os.Rename(tmp, s.path(deviceID))
}

// Ledger возвращает журнал для конкретного устройства.
// Ошибка — только при недопустимом идентификаторе устройства.
func (s *GuestStore) Ledger(deviceID string) (*GuestLedger, error) {
	if !validDeviceID(deviceID) {
		return nil, fmt.Errorf("invalid guest device id %q", deviceID)
	}
	return &GuestLedger{store: s, deviceID: deviceID}, nil
}

// GuestLedger реализует repository.AttemptLedger для одного гостевого
// устройства. Запись синхронная: хранилище локальное и дешёвое.
type GuestLedger struct {
	store    *GuestStore
	deviceID string
}

func subjectKey(subjectID uint) string {
	return strconv.FormatUint(uint64(subjectID), 10)
}

// AttemptedIDs возвращает ID вопросов, уже выданных устройству по предмету
func (l *GuestLedger) AttemptedIDs(subjectID uint) ([]uint, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	state, err := l.store.load(l.deviceID)
	if err != nil {
		return nil, err
	}
	ids := state.Subjects[subjectKey(subjectID)]
	out := make([]uint, len(ids))
	copy(out, ids)
	return out, nil
}

// Record идемпотентно добавляет выданные вопросы в набор предмета
func (l *GuestLedger) Record(subjectID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	state, err := l.store.load(l.deviceID)
	if err != nil {
		return err
	}

	key := subjectKey(subjectID)
	seen := make(map[uint]struct{}, len(state.Subjects[key]))
	for _, id := range state.Subjects[key] {
		seen[id] = struct{}{}
	}
	for _, id := range questionIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		state.Subjects[key] = append(state.Subjects[key], id)
	}

	return l.store.save(l.deviceID, state)
}

// Reset очищает набор ровно одного предмета, наборы других предметов не трогает
func (l *GuestLedger) Reset(subjectID uint) (int64, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	state, err := l.store.load(l.deviceID)
	if err != nil {
		return 0, err
	}

	key := subjectKey(subjectID)
	deleted := int64(len(state.Subjects[key]))
	if deleted == 0 {
		return 0, nil
	}
	delete(state.Subjects, key)

	if err := l.store.save(l.deviceID, state); err != nil {
		return 0, err
	}
	return deleted, nil
}

// CountAttempted возвращает количество выданных вопросов по предмету
func (l *GuestLedger) CountAttempted(subjectID uint) (int64, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	state, err := l.store.load(l.deviceID)
	if err != nil {
		return 0, err
	}
	return int64(len(state.Subjects[subjectKey(subjectID)])), nil
}
