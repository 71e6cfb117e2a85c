package main

import "github.com/dateapp/imgpipeline/cmd/imgpipeline/cmd"

func main() {
	cmd.Execute()
}
