package main

import (
	"log"
	"os"

	"united/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}
