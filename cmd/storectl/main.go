package main

import "github.com/ahsanhabibakik/rupomoti/internal/cli"

func main() {
	cli.Execute()
}
