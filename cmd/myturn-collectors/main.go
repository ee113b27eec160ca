package main

import (
	"os"

	mtc "github.com/MyTurnWatch/myturn-collectors/golang"
)

// local runner, see Run for usage

func main() {
	mtc.Run(os.Args)
}
