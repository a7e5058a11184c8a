// Sealed-bid RFP client executable.
package main

import (
	"github.com/shutter-network/SealedBidRFP/cmd"
)

func main() {
	cmd.Execute()
}
