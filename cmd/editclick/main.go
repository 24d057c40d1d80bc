package main

import "github.com/forPelevin/editclick/internal/cli"

func main() { cli.Main() }
