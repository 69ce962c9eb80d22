package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/popularfeed/internal/config"
)

// newConfigCmd создаёт команду для работы с конфигурацией.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с конфигурацией",
		Long: `Работа с конфигурацией.

Файл ищется в ./popularfeed.yaml и ~/.config/popularfeed/config.yaml,
если не указан --config. Переменные окружения и флаги имеют приоритет над файлом.

Примеры:
  # Создать пример конфигурации
  popularfeed config init

  # Показать итоговую конфигурацию
  popularfeed config show --preset daily

  # Список наборов листингов
  popularfeed config presets`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPresetsCmd())

	return cmd
}

// newConfigInitCmd создаёт команду для записи примера конфигурации.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Записать пример файла конфигурации",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "popularfeed.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("файл %s уже существует (используйте --force)", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("не удалось создать директорию: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0644); err != nil {
				return fmt.Errorf("не удалось записать файл: %w", err)
			}

			fmt.Printf("✅ Конфигурация записана: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Перезаписать существующий файл")
	return cmd
}

// newConfigShowCmd создаёт команду для отображения итоговой конфигурации.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Показать итоговую конфигурацию без секретов",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Println(cfg.String())

			if err := cfg.Validate(); err != nil {
				fmt.Printf("⚠️  %v\n", err)
			}
			return nil
		},
	}
}

// newConfigPresetsCmd создаёт команду для списка наборов листингов.
func newConfigPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Показать наборы листингов",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ИМЯ\tОСНОВНОЙ\tДОПОЛНИТЕЛЬНЫЕ")
			fmt.Fprintln(w, "---\t--------\t--------------")

			for _, name := range config.ValidPresets() {
				p := config.Presets[config.Preset(name)]
				aux := "-"
				if len(p.Aux) > 0 {
					aux = strings.Join(p.Aux, ", ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, p.Primary, aux)
			}
			w.Flush()
		},
	}
}
