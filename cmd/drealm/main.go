package main

import "github.com/mcoot/dragonrealm/internal/cli"

func main() {
	cli.Execute()
}
