package main

import "github.com/jmcleod/tokendesk/cmd/tokendesk/cmd"

func main() {
	cmd.Execute()
}
