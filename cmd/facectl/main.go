package main

import "github.com/your-org/eventface/internal/cli"

func main() {
	cli.Execute()
}
