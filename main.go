package main

import "github.com/nextlevelbuilder/voxroom/cmd"

func main() {
	cmd.Execute()
}
