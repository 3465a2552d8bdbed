package main

import "agrirec/internal/cli"

func main() {
	cli.Execute()
}
