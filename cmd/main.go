package main

import (
	"context"
	"os"

	_ "book_spider/internal/shops/bebc"
	_ "book_spider/internal/shops/myshop"
	_ "book_spider/internal/shops/studentsbook"

	"github.com/charmbracelet/fang"
)

const version = "1.0.0"

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
