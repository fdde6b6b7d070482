package main

import "github.com/ComputerAnything/cpta-blog-sub000/cmd/blogsession/cmd"

func main() {
	cmd.Execute()
}
