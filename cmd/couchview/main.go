package main

import "github.com/andreyvit/couchview/cmd/couchview/cmd"

func main() {
	cmd.Execute()
}
