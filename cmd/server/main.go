package main

import "github.com/tixdesk/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
