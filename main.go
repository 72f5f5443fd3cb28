package main

import "github.com/quartzchain/quartz/cmd"

func main() {
	cmd.Execute()
}
