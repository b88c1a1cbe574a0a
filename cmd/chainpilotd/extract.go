package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"ChainPilot/internal/extract"
)

var extractSchema string

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "从模型回复中提取 JSON 对象",
	Long: `extract 读取文件或标准输入中的模型回复，按 schema 对应的策略提取 JSON 对象，
并以格式化后的 JSON 输出。提取失败时以状态码 1 退出。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			in = file
		}
		strategy, err := runExtract(in, cmd.OutOrStdout(), extractSchema)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "schema=%s strategy=%s\n", extractSchema, strategy)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractSchema, "schema", "s", extract.SchemaGeneric,
		"提取使用的 schema: "+strings.Join(extract.SchemaNames(), "|"))
}

// runExtract 提取 in 中的 JSON 对象写入 out，返回命中的策略名。
func runExtract(in io.Reader, out io.Writer, schema string) (string, error) {
	extractor, err := extract.ForSchema(schema)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}

	obj, strategy, err := extractor.ExtractWithStrategy(string(raw))
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	if _, err := out.Write(pretty.Pretty(encoded)); err != nil {
		return "", err
	}
	return strategy, nil
}
