package main

import "github.com/artemshloyda/popularfeed/internal/cli"

func main() {
	cli.Execute()
}
