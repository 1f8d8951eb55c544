package main

import "github.com/latticeforge/stencilmesh/cmd/stencild/cmd"

func main() {
	cmd.Execute()
}
