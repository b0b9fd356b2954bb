package main

import "github.com/docreader-go/docreader/cmd/docreader/cmd"

func main() {
	cmd.Execute()
}
