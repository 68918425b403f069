package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/config"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/output"
	"github.com/Dima2024Alekseev/bot-pm2/internal/parser"
	"github.com/Dima2024Alekseev/bot-pm2/internal/tailer"
	"github.com/Dima2024Alekseev/bot-pm2/internal/watcher"
)

var (
	outputFmt   string
	levelFilter string
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Print classified log lines to the terminal",
	Long: `Watch one or more log files (or glob patterns) and print every new line
with its severity, using the same keywords as the relay. Without arguments the
configured out and err logs are watched.

Examples:
  bot-pm2 watch
  bot-pm2 watch ~/.pm2/logs/api-out.log ~/.pm2/logs/api-error.log
  bot-pm2 watch "/var/log/**/*.log" --output json --level warning`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	watchCmd.Flags().StringVarP(&levelFilter, "level", "l", "none", "minimum severity shown: none, warning, critical")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := make([]tailer.Source, 0, len(args))
	patterns := args
	if len(patterns) == 0 {
		sources = logSources(cfg.LogFileOut, cfg.LogFileErr)
		for _, s := range sources {
			patterns = append(patterns, s.Path)
		}
	}

	w, err := watcher.New(patterns)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if len(args) > 0 {
		for _, p := range w.Paths() {
			sources = append(sources, tailer.Source{Path: p, Stream: model.StreamOut})
		}
	}
	if len(sources) == 0 {
		return fmt.Errorf("no files to watch: pass paths or set log_file_out / log_file_err")
	}

	fmt.Fprintf(os.Stderr, "watching %d file(s):\n", len(sources))
	for _, s := range sources {
		fmt.Fprintf(os.Stderr, "   • %s (%s)\n", s.Path, s.Stream)
	}
	fmt.Fprintln(os.Stderr)

	p, err := parser.New(cfg.LogFormat, parser.NewRules(cfg.CriticalKeywords, cfg.WarningKeywords))
	if err != nil {
		return err
	}
	t := tailer.New(afero.NewOsFs(), sources, p)
	renderer := output.New(outputFmt)
	threshold := model.ParseSeverity(levelFilter)

	go w.Start(ctx)
	go t.Start(ctx, w.Events)

	for ev := range t.Events() {
		if ev.Severity.Rank() < threshold.Rank() {
			continue
		}
		if err := renderer.Render(ev); err != nil {
			log.Error("render", "err", err)
		}
	}
	return nil
}
