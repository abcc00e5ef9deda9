package main

import "github.com/example/land-scheduler/cmd"

func main() {
	cmd.Execute()
}
