package main

import "github.com/nsyszr/notify/cmd"

func main() {
	cmd.Execute()
}
