package main

import "github.com/audiolibrelab/multirec/cmd"

func main() {
	cmd.Execute()
}
