package main

import "framecast/cmd"

func main() {
	cmd.Execute()
}
