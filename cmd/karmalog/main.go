// Command karmalog prints the bot's JSON log file in a readable form.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logx "karmabot/pkg/logx"
)

func main() {
	var (
		path   string
		n      int
		follow bool
		raw    bool
	)
	flag.StringVar(&path, "file", logx.DefaultFilePath, "log file to read")
	flag.IntVar(&n, "n", 50, "number of trailing lines to print (0 = all)")
	flag.BoolVar(&follow, "follow", false, "keep printing lines as they are appended")
	flag.BoolVar(&raw, "raw", false, "print JSON lines unformatted")
	flag.Parse()

	render := logx.FormatLine
	if raw {
		render = func(line string) string { return line }
	}

	lines, offset, err := logx.Tail(path, n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "karmalog:", err)
		os.Exit(1)
	}
	for _, line := range lines {
		fmt.Println(render(line))
	}
	if !follow {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = logx.Follow(ctx, path, offset, func(line string) {
		fmt.Println(render(line))
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "karmalog:", err)
		os.Exit(1)
	}
}
