package main

import "github.com/sadopc/crewclock/cmd"

func main() {
	cmd.Execute()
}
