// Package main is the entry point for the appscout executable.
package main

import "github.com/appscout/appscout/cmd"

func main() {
	cmd.Execute()
}
