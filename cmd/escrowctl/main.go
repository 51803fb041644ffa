package main

import "github.com/harvest-market/escrow/internal/cli"

func main() {
	cli.Execute()
}
