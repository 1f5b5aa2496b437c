//go:build ignore
// +build ignore

package main

import (
	"log"

	msgport "github.com/mithrel/msgport/internal/cli"
	"github.com/spf13/cobra/doc"
)

func main() {
	root := msgport.NewRootCmd()

	if err := doc.GenMarkdownTree(root, "./docs/markdown"); err != nil {
		log.Fatal(err)
	}

	header := &doc.GenManHeader{
		Title:   "MSGPORT-CLI",
		Section: "1",
	}
	if err := doc.GenManTree(root, header, "./docs/man"); err != nil {
		log.Fatal(err)
	}
}
