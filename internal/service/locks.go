package service

import (
	"sync"

	"github.com/google/uuid"
)

// AccountLocks - реестр мьютексов по аккаунтам.
//
// Обработка сигнала, принудительное закрытие, проверка риска и ручная
// установка баланса одного аккаунта выполняются строго последовательно.
// Разные аккаунты обрабатываются параллельно.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewAccountLocks создает пустой реестр
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock захватывает мьютекс аккаунта и возвращает функцию освобождения
func (l *AccountLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget удаляет мьютекс удаленного аккаунта
func (l *AccountLocks) Forget(id uuid.UUID) {
	l.mu.Lock()
	delete(l.locks, id)
	l.mu.Unlock()
}

// Len возвращает число известных аккаунтов
func (l *AccountLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
