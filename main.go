package main

import "github.com/vistral/deskpilot/cmd"

func main() {
	cmd.Execute()
}
