//go:build windows

package main

import "github.com/RecoveryAshes/sitecrawl/internal/core"

// watchDumpSignal Windows没有SIGUSR1
func watchDumpSignal(*core.Crawler) func() {
	return func() {}
}
