package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandDiscover はディスカバリーを1回実行することを示す。
	CommandDiscover Command = "discover"
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandArchive は終端ステータスのInbox行をアーカイブすることを示す。
	CommandArchive Command = "archive"
	// CommandScout はシードページからソース候補を集めることを示す。
	CommandScout Command = "scout"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はCLIのルートコマンドを生成する。
// wはログとコマンド出力の書き込み先。サブコマンドを省略した場合はserveとして起動する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "bocholt-discovery",
		Short:         "Bocholtのイベント情報を収集してInboxに登録する",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), w)
		},
	}
	root.SetOut(w)

	root.AddCommand(
		newDiscoverCommand(w),
		newServeCommand(w),
		newMigrateCommand(w),
		newArchiveCommand(w),
		newScoutCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newDiscoverCommand(w io.Writer) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   string(CommandDiscover),
		Short: "登録済みソースを巡回してInboxに書き込む",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), w, cmd.OutOrStdout(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "すべての処理を行うが何も書き込まない")
	return cmd
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "HTTP APIサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), w)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "未適用のマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(w)
		},
	}
}

func newArchiveCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandArchive),
		Short: "終端ステータスのInbox行をアーカイブへ移す",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd.Context(), w)
		},
	}
}

func newScoutCommand(w io.Writer) *cobra.Command {
	var seeds []string
	cmd := &cobra.Command{
		Use:   string(CommandScout),
		Short: "シードページからイベントソースの候補を集める",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScout(cmd.Context(), w, cmd.OutOrStdout(), append(seeds, args...))
		},
	}
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "巡回するシードページのURL（複数指定可）")
	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "起動中のサーバーの /health を確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(healthcheckPort())
		},
	}
}
