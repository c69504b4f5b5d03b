package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runCommand 执行外部命令并收集输出，失败时把输出尾部带进错误信息
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", err, tailOf(string(output)))
	}
	return output, nil
}

// tailOf 截取命令输出的末尾，避免把几兆的日志塞进错误信息
func tailOf(output string) string {
	output = strings.TrimSpace(output)
	const limit = 512
	if len(output) > limit {
		return "..." + output[len(output)-limit:]
	}
	return output
}
