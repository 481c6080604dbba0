package main

import "github.com/ppiankov/fieldguard/internal/cli"

func main() {
	cli.Execute()
}
