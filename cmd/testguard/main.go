package main

import "github.com/ppiankov/testguard/internal/cli"

func main() {
	cli.Execute()
}
