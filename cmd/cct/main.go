package main

import "github.com/linmingchih/channel-check-tool-v2/cmd/cct/cmd"

func main() {
	cmd.Execute()
}
