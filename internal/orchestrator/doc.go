// Package orchestrator выполняет циклы импорта.
//
// # Обзор
//
// Orchestrator владеет фиксированным пулом горутин (Pool) и списком
// importer'ов. Цикл RunImportCycle:
//
//  1. Выбирает активные подписки, чей tier совпадает с текущим часом
//  2. Делит их на bundles по BundleSize (100) и обрабатывает bundles строго по очереди
//  3. Для каждого bundle запускает по задаче на importer и ждёт всех (барьер)
//  4. Логирует мягкие ошибки, накопленные importer'ами в ErrorReporter
//  5. Сливает items по подписке и проводит каждый через Resolve
//  6. Записывает метрику подписки со счётчиками persist/skip/archive
//
// # Resolve
//
// Дедупликация по content hash, затем правила (rules.Executor), затем
// ArchivePolicy, затем сохранение. Конфликт уникальности при вставке
// считается SKIP_ALREADY_EXISTS: между проверкой и вставкой возможна гонка,
// уникальный индекс хранилища — окончательная защита.
//
// # Ошибки
//
// Ошибка или panic задачи importer'а не затрагивает соседние задачи.
// Ошибка одного item не прерывает остальные items подписки.
// Цикл никогда не завершает процесс: всё логируется на месте.
package orchestrator
