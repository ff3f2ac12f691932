package main

import "github.com/scrypster/fieldmemo/internal/cli"

func main() {
	cli.Execute()
}
