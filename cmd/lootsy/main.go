// Command lootsy はディール集約サービスのエントリーポイント。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/lootsy/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "lootsy: %v\n", err)
		os.Exit(1)
	}
}
