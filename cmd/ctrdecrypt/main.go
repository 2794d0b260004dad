package main

import "github.com/connesc/ctrdecrypt/internal/cmd"

func main() {
	cmd.Execute()
}
