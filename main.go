// Package main is the entry point for tourguide.
package main

import "tourguide/internal/cli"

func main() {
	cli.Execute()
}
