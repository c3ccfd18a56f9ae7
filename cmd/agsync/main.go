package main

import "github.com/agavecli/agsync/internal/cli"

func main() {
	cli.Execute()
}
