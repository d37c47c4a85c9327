package main

import "github.com/derickschaefer/lifeos/cmd"

func main() {
	cmd.Execute()
}
