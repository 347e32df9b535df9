// Command sqlrunner runs SQL through Superset SQL Lab from the terminal or as
// an MCP server.
package main

import "sqlrunner/internal/cli"

func main() {
	cli.Execute()
}
