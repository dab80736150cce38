package main

import "github.com/andresmejia3/mimic/cmd"

func main() {
	cmd.Execute()
}
