package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/drivermgr/cmd/cpeer-driver-manager/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewDriverManagerCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
