package main

import (
	"os"

	"github.com/ldapgate/ldapgate/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
