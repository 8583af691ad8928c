package main

import (
	"context"
	"fmt"
	"os"

	"github.com/zeebo/clingy"

	"github.com/GindaChen/nsys-ai/logutil"
)

func main() {
	logutil.InitLogger(os.Getenv("NSYS_AI_DEBUG") != "")

	ok, err := clingy.Environment{
		Name: "nsys-ai",
		Args: os.Args[1:],
	}.Run(context.Background(), func(cmds clingy.Commands) {
		cmds.New("info", "Show profile metadata and GPU hardware", new(cmdInfo))
		cmds.New("summary", "Kernel statistics for one GPU", new(cmdSummary))
		cmds.New("tree", "Print the reconstructed annotation/kernel hierarchy", new(cmdTree))
		cmds.New("convergence", "Score annotation-to-kernel mapping quality", new(cmdConvergence))
		cmds.New("overlap", "Compute/communication overlap analysis", new(cmdOverlap))
		cmds.New("collectives", "Break down collective kernels by type", new(cmdCollectives))
		cmds.New("iterations", "Detect training-loop iterations", new(cmdIterations))
		cmds.New("search", "Search kernels and annotations", new(cmdSearch))
		cmds.New("export", "Write a trace-viewer JSON file", new(cmdExport))
		cmds.New("export-flat", "Write kernel rows as CSV or JSON", new(cmdExportFlat))
	})
	logutil.GetLogger().Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if !ok || err != nil {
		os.Exit(1)
	}
}
