package main

import "dmchat/cmd"

func main() {
	cmd.Execute()
}
