//go:build !windows

package main

import (
	"github.com/Paintersrp/forkdemo/internal/cli"
	"github.com/Paintersrp/forkdemo/internal/proc"
)

func main() {
	// Children re-enter here; Init runs their routine and exits.
	if proc.Init() {
		return
	}
	cli.Execute()
}
