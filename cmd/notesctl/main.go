package main

import "github.com/jrsteele09/go-notes-session/cmd/notesctl/cmd"

func main() {
	cmd.Execute()
}
