package main

import "github.com/openpseudonym/idbroker/cmd"

func main() {
	cmd.Execute()
}
