package main

import "github.com/mcoot/tabletop/internal/cli"

func main() {
	cli.Execute()
}
