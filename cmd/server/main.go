package main

import (
	"github.com/OFFIS-RIT/hazgraph/internal/app"
	"github.com/OFFIS-RIT/hazgraph/internal/server"
	"github.com/OFFIS-RIT/hazgraph/internal/util"
)

func main() {
	util.LoadEnv()
	app.InitLogger("hazgraph-server")

	server.Init()
}
