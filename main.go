package main

import "nomark/cmd"

func main() {
	cmd.Execute()
}
