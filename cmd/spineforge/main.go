package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		logrus.WithError(err).Error("spineforge failed")
		os.Exit(1)
	}
}
