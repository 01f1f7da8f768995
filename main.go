package main

import "ocppgate/cmd"

func main() {
	cmd.Execute()
}
