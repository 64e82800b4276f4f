package main

import "github.com/mkoskinen/librarian/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
