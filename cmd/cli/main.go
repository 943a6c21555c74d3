package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iho/goimport/internal/infrastructure/logger"
	"github.com/iho/goimport/internal/infrastructure/settings"
	"github.com/iho/goimport/internal/tui"
)

// app carries what the commands share.
type app struct {
	settingsFile string
	logLevel     string
	viper        *viper.Viper
	settings     *settings.Settings
	out          io.Writer
	theme        tui.Theme
}

func (a *app) logger() zerolog.Logger {
	return logger.NewWithWriter(logger.Config{Level: a.logLevel, Format: "console"}, os.Stderr)
}

func (a *app) client() *apiClient {
	return newAPIClient(a.settings.URL, a.settings.Timeout)
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{viper: viper.New(), out: out, theme: tui.DefaultTheme}

	rootCmd := &cobra.Command{
		Use:           "goimport-cli",
		Short:         "GoImport CLI tool",
		Long:          `A command line interface for importing transaction files through the GoImport API or offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(a.viper, a.settingsFile)
			if err != nil {
				return err
			}
			a.settings = s
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.settingsFile, "settings", "", "settings file (default: ./goimport.yaml or $HOME/.config/goimport/goimport.yaml)")
	flags.String("url", "http://localhost:8080", "Base URL of the GoImport API")
	flags.Duration("timeout", 30*time.Second, "Request timeout")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level of offline runs")
	_ = a.viper.BindPFlag("url", flags.Lookup("url"))
	_ = a.viper.BindPFlag("timeout", flags.Lookup("timeout"))

	rootCmd.AddCommand(processCmd(a), localCmd(a))
	return rootCmd
}
