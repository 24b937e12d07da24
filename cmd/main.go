package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MimeLyc/srt-batch-translator/internal/service"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			fmt.Fprintln(os.Stderr, "advice:", service.NewDefaultErrorHandler().GetAdvice(svcErr))
		}
		os.Exit(1)
	}
}
