package main

import "github.com/lbraun/sKV/cmd"

func main() {
	cmd.Execute()
}
