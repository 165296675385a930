package main

import "github.com/eslsoft/lexmatrix/cmd"

func main() {
	cmd.Execute()
}
