package main

import "evsim/cmd"

func main() {
	cmd.Execute()
}
