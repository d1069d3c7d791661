// memctl is the command-line interface for the Agent Memory System.
package main

import "github.com/agentmemory/memctl/internal/cli"

func main() {
	cli.Execute()
}
