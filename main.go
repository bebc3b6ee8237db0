package main

import "github.com/ngld/mmpack/cmd"

func main() {
	cmd.Execute()
}
