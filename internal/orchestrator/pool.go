package orchestrator

import (
	"context"
	"sync"
)

// Pool — фиксированный пул горутин для задач importer'ов.
//
// Создаётся один раз при старте и переиспользуется всеми циклами.
type Pool struct {
	tasks chan func()
	size  int
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// PoolSize вычисляет размер пула: max(1, min(importers, cpus-1) - 1).
//
// Одна единица резервируется под горутину, которая сливает результаты.
func PoolSize(importers, cpus int) int {
	return max(1, min(importers, cpus-1)-1)
}

// NewPool запускает пул из size горутин.
func NewPool(size int) *Pool {
	size = max(1, size)
	p := &Pool{
		tasks: make(chan func()),
		size:  size,
	}

	p.wg.Add(size)
	for range size {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit передаёт задачу свободной горутине, ожидая её при необходимости.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size возвращает число горутин пула.
func (p *Pool) Size() int {
	return p.size
}

// Running возвращает true, пока пул не остановлен.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.stopped
}

// Stop закрывает пул и ждёт завершения выполняющихся задач.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
