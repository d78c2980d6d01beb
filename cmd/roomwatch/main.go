package main

import "github.com/synheart/roomwatch/internal/cli"

func main() {
	cli.Execute()
}
