package main

import "github.com/KaramelBytes/insightcopilot/cmd"

func main() {
	cmd.Execute()
}
