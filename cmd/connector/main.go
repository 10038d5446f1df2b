package main

import "vetbridge/cmd/connector/cmd"

func main() {
	cmd.Execute()
}
