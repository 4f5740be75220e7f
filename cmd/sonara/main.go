package main

import "github.com/sonara-ai/sonara/internal/cmd"

func main() {
	cmd.Execute()
}
