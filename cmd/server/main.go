// @title                       teamboard API
// @version                     1.0
// @description                 Team task board with live updates over websocket.
// @BasePath                    /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"os"

	"teamboard/internal/app"
)

func main() {
	os.Exit(app.Run())
}
