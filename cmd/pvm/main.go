package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/pvm-sh/pvm/cmd"
	"github.com/pvm-sh/pvm/pkg/httpclient"
)

var (
	// Version and Commit are set during build
	version = "dev"
	commit  = "none"
)

func main() {
	httpclient.UserAgent = "pvm/" + version

	// fang cancels the command context on SIGINT/SIGTERM, which aborts a
	// running download
	if err := fang.Execute(
		context.Background(),
		cmd.RootCmd,
		fang.WithVersion(version),
		fang.WithCommit(commit),
		fang.WithNotifySignal(syscall.SIGINT, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
