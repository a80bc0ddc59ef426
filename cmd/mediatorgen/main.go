// Command mediatorgen writes the binding tables of generated bus modules
package main

import (
	"os"

	"github.com/GabrielCarpr/mediator/gen/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:]))
}
