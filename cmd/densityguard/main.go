package main

import "github.com/hed1ad/densityguard/internal/cli"

func main() {
	cli.Execute()
}
