// Command learnhub は従業員研修管理APIのエントリーポイント。
//
//	learnhub [serve|migrate|reconcile|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/learnhub/internal/app"
	"github.com/hitoshi/learnhub/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
