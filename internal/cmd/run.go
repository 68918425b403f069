package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/aggregator"
	"github.com/Dima2024Alekseev/bot-pm2/internal/bot"
	"github.com/Dima2024Alekseev/bot-pm2/internal/config"
	"github.com/Dima2024Alekseev/bot-pm2/internal/health"
	"github.com/Dima2024Alekseev/bot-pm2/internal/hub"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/notify"
	"github.com/Dima2024Alekseev/bot-pm2/internal/parser"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
	"github.com/Dima2024Alekseev/bot-pm2/internal/server"
	"github.com/Dima2024Alekseev/bot-pm2/internal/tailer"
	"github.com/Dima2024Alekseev/bot-pm2/internal/telegram"
	"github.com/Dima2024Alekseev/bot-pm2/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot and log relay",
	Long: `Run follows the app's PM2 logs, relays new lines to the admin chat,
reports PM2 lifecycle changes and scheduled health alerts, and answers chat
commands until interrupted.

Examples:
  bot-pm2 run
  BOT_TOKEN=... CHAT_ID=... PM2_APP_NAME=api bot-pm2 run
  bot-pm2 run --config /etc/bot-pm2.yaml`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procs := pm2.NewClient(cfg.PM2Bin, pm2.ExecRunner)
	outPath, errPath := resolveLogPaths(ctx, cfg, procs)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info("authorized on telegram", "bot", api.Self.UserName)
	tg := telegram.NewClient(api)

	rules := parser.NewRules(cfg.CriticalKeywords, cfg.WarningKeywords)
	p, err := parser.New(cfg.LogFormat, rules)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	var opts []tailer.Option
	if cfg.StateFile != "" {
		ckpt, err := tailer.NewCheckpoint(fs, cfg.StateFile)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		opts = append(opts, tailer.WithCheckpoint(ckpt))
	}

	sources := logSources(outPath, errPath)
	if len(sources) == 0 {
		log.Warn("no log files configured, only commands and PM2 events are served", "app", cfg.AppName)
	}
	paths := make([]string, 0, len(sources))
	for _, s := range sources {
		paths = append(paths, s.Path)
	}

	w, err := watcher.New(paths)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	t := tailer.New(fs, sources, p, opts...)
	h := hub.New(t.Events())
	agg := aggregator.New(h.Subscribe(), h.Dropped, func() int { return len(t.Files()) })
	relay := h.Subscribe()

	notifier := notify.New(tg, cfg.ChatID, cfg.AppName, cfg.NotifyLevel)
	monitor := pm2.NewMonitor(procs, cfg.AppName, cfg.PM2PollInterval)
	th := health.Thresholds{
		CPUPercent:      cfg.CPUThresholdPercent,
		MemoryMB:        cfg.MemoryThresholdMB,
		DiskFreePercent: cfg.DiskSpaceThresholdPercent,
	}
	checker := health.NewChecker(health.SystemCollector{}, procs, cfg.AppName, th)
	b := bot.New(bot.Options{
		ChatID:     cfg.ChatID,
		App:        cfg.AppName,
		LogOut:     outPath,
		LogErr:     errPath,
		Thresholds: th,
	}, tg, procs, t, checker, agg)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// The log pipeline drains on shutdown: the tailer flushes and closes its
	// output, the hub closes its subscribers, the relay sends what is left.
	spawn(func() { w.Start(ctx) })
	spawn(func() { t.Start(ctx, w.Events) })
	spawn(h.Start)
	spawn(func() { agg.Start(ctx) })
	spawn(func() { notifier.Run(context.WithoutCancel(ctx), relay) })

	spawn(func() { monitor.Start(ctx) })
	spawn(func() { notifier.RunProcessEvents(ctx, monitor.Events()) })
	spawn(func() {
		checker.Run(ctx, cfg.CheckInterval, func(r health.Report) { notifier.Health(ctx, r) })
	})

	if cfg.HTTPAddr != "" {
		srv := server.New(h, agg, t, map[string]string{model.StreamOut: outPath, model.StreamErr: errPath}, cfg.HTTPAddr)
		spawn(func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("http server stopped", "err", err)
			}
		})
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	spawn(func() { b.Run(ctx, updates) })

	log.Info("bot-pm2 is running", "app", cfg.AppName, "out", outPath, "err", errPath, "check_interval", cfg.CheckInterval)

	<-ctx.Done()
	log.Info("shutting down")
	api.StopReceivingUpdates()
	wg.Wait()
	return nil
}

// resolveLogPaths fills log paths missing from the config with the ones PM2
// reports for the app.
func resolveLogPaths(ctx context.Context, cfg config.Config, procs *pm2.Client) (string, string) {
	out, errLog := cfg.LogFileOut, cfg.LogFileErr
	if out != "" && errLog != "" {
		return out, errLog
	}

	proc, err := procs.Find(ctx, cfg.AppName)
	if err != nil {
		if errors.Is(err, pm2.ErrNotFound) {
			log.Warn("app not registered in pm2, log paths unresolved", "app", cfg.AppName)
		} else {
			log.Warn("cannot resolve log paths from pm2", "err", err)
		}
		return out, errLog
	}
	if out == "" {
		out = proc.Env.OutLogPath
	}
	if errLog == "" {
		errLog = proc.Env.ErrLogPath
	}
	return out, errLog
}

func logSources(out, errLog string) []tailer.Source {
	var sources []tailer.Source
	if out != "" {
		sources = append(sources, tailer.Source{Path: out, Stream: model.StreamOut})
	}
	if errLog != "" {
		sources = append(sources, tailer.Source{Path: errLog, Stream: model.StreamErr})
	}
	return sources
}
