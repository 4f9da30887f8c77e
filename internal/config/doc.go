// Package config загружает конфигурацию процессов Buffy.
//
// Источники, по возрастанию приоритета:
//   - значения по умолчанию (теги default)
//   - файлы buffy.hcl и buffy.local.hcl
//   - переменные окружения с префиксом BUFFY_ (в том числе из .env)
package config
