// Package purger очищает хранилище от устаревших данных.
//
// Раз в сутки:
//   - архивирует items, которые долго лежат непрочитанными или прочитанными
//   - удаляет items, находящиеся в архиве дольше MaxPostAge
//   - удаляет метрики удалённых подписок
package purger
