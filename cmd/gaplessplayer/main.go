// Command gaplessplayer is the CLI entrypoint wiring cmd's cobra
// commands to a real PortAudio output device.
package main

import (
	"github.com/drgolem/gaplessplayer/cmd"
)

func main() {
	cmd.Execute()
}
