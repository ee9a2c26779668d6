package main

import "imagededup/cmd"

func main() {
	cmd.Execute()
}
