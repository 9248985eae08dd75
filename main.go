package main

import "github.com/qdongxu/Lealone/cmd"

func main() {
	cmd.Execute()
}
