package main

import "github.com/nacholabs/nacho/cmd"

func main() {
	cmd.Execute()
}
