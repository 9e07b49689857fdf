// Package fsm 提供泛型有限状态机，支持带守卫条件的迁移
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidTransition 当前状态不允许该事件
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrGuardRejected 守卫条件拒绝了迁移
	ErrGuardRejected = errors.New("transition guard rejected")
)

// Guard 迁移守卫，返回 false 时迁移被拒绝
type Guard func(ctx context.Context) bool

type transitionKey[S comparable, E comparable] struct {
	from  S
	event E
}

type transition[S comparable] struct {
	to    S
	guard Guard
}

// Machine 状态机
type Machine[S comparable, E comparable] struct {
	mu          sync.RWMutex
	current     S
	transitions map[transitionKey[S, E]]transition[S]
}

// NewMachine 以初始状态创建状态机
func NewMachine[S comparable, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[transitionKey[S, E]]transition[S]),
	}
}

// AddTransition 注册 from --event--> to
func (m *Machine[S, E]) AddTransition(from S, event E, to S) {
	m.AddGuardedTransition(from, event, to, nil)
}

// AddGuardedTransition 注册带守卫条件的迁移
func (m *Machine[S, E]) AddGuardedTransition(from S, event E, to S, guard Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[transitionKey[S, E]{from: from, event: event}] = transition[S]{to: to, guard: guard}
}

// Current 返回当前状态
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Trigger 触发事件；失败时状态保持不变
func (m *Machine[S, E]) Trigger(ctx context.Context, event E) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transitions[transitionKey[S, E]{from: m.current, event: event}]
	if !ok {
		return fmt.Errorf("%w: event %v from state %v", ErrInvalidTransition, event, m.current)
	}
	if t.guard != nil && !t.guard(ctx) {
		return fmt.Errorf("%w: event %v from state %v", ErrGuardRejected, event, m.current)
	}
	m.current = t.to
	return nil
}
