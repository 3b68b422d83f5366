/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command blogapi runs the blog API service.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
