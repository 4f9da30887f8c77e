// Package scheduler реализует адаптивное расписание импорта.
//
// Scheduler раз в час просматривает историю метрик каждой активной
// подписки и понижает tier тех, что подряд не приносят новых items:
//
//	A (каждый час) → B (каждые 6 часов) → C (каждые 12 часов) → D (раз в сутки)
//
// Повышения tier нет.
//
// Структура:
//   - scheduler.go — Update и чистая функция Reschedule
//   - cron.go      — Triggers: периодический запуск импорта, Update и очистки
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Subscriptions: subscriptionRepo,
//	    Metrics:       metricsRepo,
//	    Logger:        logger,
//	})
//
//	triggers := scheduler.NewTriggers(scheduler.TriggersConfig{Logger: logger})
//	triggers.Add("schedule-update", scheduler.DefaultScheduleSpec, func(ctx context.Context) error {
//	    _, err := sched.Update(ctx)
//	    return err
//	})
//	triggers.Start(ctx)
//	defer triggers.Stop()
package scheduler
