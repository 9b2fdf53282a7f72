package main

import "github.com/kestrad/modelgrab/cmd"

func main() {
	cmd.Execute()
}
