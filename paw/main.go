package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/prior-auth/paw-app/paw/pawcli"
)

func main() {
	if err := pawcli.GetApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
