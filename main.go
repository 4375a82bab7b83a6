package main

import "github.com/pelicanproject/go-pelican/cmd"

func main() {
	cmd.Execute()
}
