// Package feeds — importer RSS/Atom подписок на базе gofeed.
//
// Importer обходит подписки bundle по очереди: скачивает ленту,
// превращает записи в domain.Item и записывает по одной метрике
// на подписку. Ошибки отдельных лент сообщаются через ErrorReporter
// и не прерывают bundle.
package feeds
