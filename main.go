package main

import "github.com/shaharia-lab/verimail/cmd"

func main() {
	cmd.Execute()
}
