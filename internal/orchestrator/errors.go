package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrCycleInProgress — предыдущий цикл импорта ещё выполняется.
	ErrCycleInProgress = errors.New("import cycle already in progress")

	// ErrCycleAborted — ожидание bundle прервано, оставшиеся bundles пропущены.
	ErrCycleAborted = errors.New("import cycle aborted")

	// ErrCyclePanic — непредвиденная panic в цикле импорта.
	ErrCyclePanic = errors.New("import cycle panicked")

	// ErrPoolStopped — пул importer'ов остановлен.
	ErrPoolStopped = errors.New("importer pool stopped")

	// ErrItemPanic — panic при обработке отдельного item.
	ErrItemPanic = errors.New("item processing panicked")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
