package main

import "github.com/killallgit/scout/cmd"

func main() {
	cmd.Execute()
}
