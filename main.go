package main

import (
	"github.com/hubevents/btcimport/cmd"
)

func main() {
	cmd.Execute()
}
