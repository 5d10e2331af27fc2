//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/sitecrawl/internal/core"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
)

// watchDumpSignal 收到SIGUSR1时输出诊断快照, 返回停止监听的函数
func watchDumpSignal(crawler *core.Crawler) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigChan:
				if err := crawler.DumpState(os.Stderr); err != nil {
					utils.Warnf("输出诊断快照失败: %v", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
