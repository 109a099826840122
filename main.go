package main

import "github.com/danielnogueira8/whopBetTracker-sub000/cmd"

func main() {
	cmd.Execute()
}
