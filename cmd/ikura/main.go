// Ikura is a chat bot for Twitch and IRC-family networks. It carries an
// embedded command language, a markov-chain text generator trained on chat,
// and a single-file persistent database holding all of its state.
package main

import (
	"os"

	"src.ikura.sh/pkg/prog"
)

func main() {
	os.Exit(prog.Run([3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args))
}
