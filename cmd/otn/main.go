package main

import "github.com/OpenTraceLab/OpenTraceERC/cmd/otn/cmd"

func main() {
	cmd.Execute()
}
