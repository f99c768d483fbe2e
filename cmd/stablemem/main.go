package main

import "go.stablemem/internal/cli"

func main() {
	cli.Execute()
}
