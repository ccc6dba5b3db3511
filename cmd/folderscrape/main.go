package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newCLI(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// exitError 携带进程退出码；RunE 返回它表示“已经输出过结果，只需按码退出”。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute 运行根命令并把结果映射为退出码。
//
// 退出码：
// - 0：没有 failed 条目（unmatched 不计入）
// - 1：存在 failed 条目、配置错误、或另一个 run 正持有锁
// - 2：参数错误（未知参数、多余的 path、非法 provider）
func execute(ctx context.Context, c *cli, args []string) int {
	cmd := c.rootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(c.stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(c.stderr, "参数错误：%v\n使用 \"folderscrape run --help\" 查看详细说明。\n", err)
	return 2
}
