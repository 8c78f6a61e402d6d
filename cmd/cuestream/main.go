package main

import "github.com/forPelevin/cuestream/internal/cli"

func main() {
	cli.Main()
}
