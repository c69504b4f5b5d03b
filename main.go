package main

import "subtitle-flow/cmd"

func main() {
	cmd.Execute()
}
