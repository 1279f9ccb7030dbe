// The main package for the harvester executable.
package main

import "github.com/briefdesk/harvester/cmd"

func main() {
	cmd.Execute()
}
