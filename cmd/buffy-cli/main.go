// Buffy CLI — инструмент командной строки для управления подписками,
// наборами правил и ручного запуска импорта.
//
// Использование:
//
//	buffy [--config FILE]... [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	subscriptions  Управление подписками
//	rulesets       Импорт наборов правил
//	metrics        История импорта подписки
//	import         Запуск цикла импорта (локально или через RabbitMQ)
//	schedule       Адаптивное расписание
//	migrate        Миграции схемы
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	env := &cli.Env{}

	rootCmd := &cobra.Command{
		Use:           "buffy",
		Short:         "Buffy CLI — feed import pipeline tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSliceVar(&env.ConfigFiles, "config", nil, "Config file (repeatable, later files override earlier)")
	rootCmd.PersistentFlags().BoolVar(&env.JSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		cli.NewSubscriptionsCmd(env),
		cli.NewRuleSetsCmd(env),
		cli.NewMetricsCmd(env),
		cli.NewImportCmd(env),
		cli.NewScheduleCmd(env),
		cli.NewMigrateCmd(env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	env.Close()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
