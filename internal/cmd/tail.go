package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/config"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
	"github.com/Dima2024Alekseev/bot-pm2/internal/tailer"
)

var tailLines int

var tailCmd = &cobra.Command{
	Use:   "tail <out|err|path>",
	Short: "Print the last lines of a log",
	Long: `Tail prints the last N non-blank lines of the app's out or err log, or of
any file given by path, exactly as the /logs chat command returns them.

Examples:
  bot-pm2 tail err
  bot-pm2 tail out -n 100
  bot-pm2 tail /var/log/nginx/error.log -n 50`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().IntVarP(&tailLines, "lines", "n", 20, "number of lines")
}

func runTail(cmd *cobra.Command, args []string) error {
	if tailLines <= 0 {
		return fmt.Errorf("--lines must be positive, got %d", tailLines)
	}

	path := args[0]
	if path == model.StreamOut || path == model.StreamErr {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		out, errLog := resolveLogPaths(ctx, cfg, pm2.NewClient(cfg.PM2Bin, pm2.ExecRunner))
		if path == model.StreamOut {
			path = out
		} else {
			path = errLog
		}
		if path == "" {
			return fmt.Errorf("%s log path is not configured and pm2 did not report one", args[0])
		}
	}

	text, err := tailer.New(afero.NewOsFs(), nil, nil).ReadLastLines(path, tailLines)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
