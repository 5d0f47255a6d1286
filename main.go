package main

import "tarabot/cmd"

func main() {
	cmd.Execute()
}
