package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/lootsy/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandSync は同期パイプラインを1回実行することを示す。
	// cron等の外部スケジューラからの起動用。
	CommandSync Command = "sync"
	// CommandCleanup は保持期間を過ぎたデータを削除することを示す。
	CommandCleanup Command = "cleanup"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// runners はサブコマンドの実処理。テストで差し替えられるよう関数値で保持する。
type runners struct {
	serve       func(cfg *config.Config) error
	sync        func(cfg *config.Config, out io.Writer) error
	cleanup     func(cfg *config.Config, out io.Writer) error
	migrate     func(cfg *config.Config) error
	healthcheck func(port string) error
	init        func(w io.Writer) (*config.Config, error)
}

func defaultRunners() runners {
	return runners{
		serve:       runServe,
		sync:        runSync,
		cleanup:     runCleanup,
		migrate:     runMigrate,
		healthcheck: runHealthcheck,
		init:        Init,
	}
}

// NewRootCommand はサブコマンドを登録したルートコマンドを生成する。
// サブコマンド未指定の場合はserveとして動作する。
// ログはlogWriterに、syncとcleanupの結果はコマンドの標準出力に書き出す。
func NewRootCommand(logWriter io.Writer) *cobra.Command {
	return newRootCommand(logWriter, defaultRunners())
}

func newRootCommand(logWriter io.Writer, r runners) *cobra.Command {
	// configured は設定を読み込んでからサブコマンドを実行するRunEを返す。
	configured := func(cmd Command, run func(c *cobra.Command, cfg *config.Config) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, _ []string) error {
			cfg, err := r.init(logWriter)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}

			slog.Info("starting application",
				slog.String("command", string(cmd)),
				slog.String("port", cfg.ServerPort),
				slog.String("base_url", cfg.BaseURL),
			)
			return run(c, cfg)
		}
	}

	serve := configured(CommandServe, func(_ *cobra.Command, cfg *config.Config) error {
		return r.serve(cfg)
	})

	root := &cobra.Command{
		Use:           "lootsy",
		Short:         "Deal aggregation service",
		Long:          "lootsy はアフィリエイトAPIからディールを取得・リライト・正規化して保存し、公開APIとサイトとして配信する。",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "HTTPサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   string(CommandSync),
			Short: "同期パイプラインを1回実行する",
			Args:  cobra.NoArgs,
			RunE: configured(CommandSync, func(c *cobra.Command, cfg *config.Config) error {
				return r.sync(cfg, c.OutOrStdout())
			}),
		},
		&cobra.Command{
			Use:   string(CommandCleanup),
			Short: "保持期間を過ぎたクリック記録とディールを削除する",
			Args:  cobra.NoArgs,
			RunE: configured(CommandCleanup, func(c *cobra.Command, cfg *config.Config) error {
				return r.cleanup(cfg, c.OutOrStdout())
			}),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "データベースマイグレーションを適用する",
			Args:  cobra.NoArgs,
			RunE: configured(CommandMigrate, func(_ *cobra.Command, cfg *config.Config) error {
				return r.migrate(cfg)
			}),
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "稼働中のサーバーの/healthを確認する",
			Args:  cobra.NoArgs,
			// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(*cobra.Command, []string) error {
				return r.healthcheck(healthcheckPort())
			},
		},
	)

	return root
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	if args == nil {
		args = []string{}
	}
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}
