package main

import "rutinasds/routines-app/internal/cli"

func main() {
	cli.Execute()
}
