package main

import (
	"log"

	"github.com/mithrel/msgport/internal/cli"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("msgport-cli: ")
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
