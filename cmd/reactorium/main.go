// Command reactorium boots the runtime's built-in reactor kinds (game
// supervisor, client manager, transport endpoints) as one process
// behind a single cobra root command.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
