package main

import "github.com/mcoot/marketid/internal/cli"

func main() {
	cli.Execute()
}
