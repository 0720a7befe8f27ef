package main

import "github.com/bryanchriswhite/focuswatch/cmd/focuswatch/commands"

func main() {
	commands.Execute()
}
