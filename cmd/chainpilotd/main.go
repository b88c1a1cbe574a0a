package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chainpilotd",
	Short: "ChainPilot 对话式链上网关",
	Long: `chainpilotd 把自然语言请求路由到大模型、链上操作与外部服务。

不带子命令运行时等同于 serve。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env 不存在时忽略，环境变量仍可直接注入。
		_ = godotenv.Load()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认读取 CHAINPILOT_CONFIG 或 configs/chainpilot.json")
	rootCmd.AddCommand(serveCmd, extractCmd)
}

// main 是 ChainPilot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "chainpilotd:", err)
		os.Exit(1)
	}
}
