// Signald — signaling store server.
//
// Serves the shared document store both call participants negotiate through.
// State is in-memory only: a call record lives as long as the process, which
// is all a signaling exchange needs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/librecall/librecall/internal/store"
	"github.com/librecall/librecall/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := pflag.String("addr", ":8787", "Listen address")
	debugMode := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Signald — v%s", version))
	pterm.Println()

	srv := store.NewServer(store.NewMemory())
	bound, err := srv.Start(*addr)
	if err != nil {
		util.LogError("failed to start store server: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	pterm.DefaultBox.WithTitle("Signaling store").Println(fmt.Sprintf("ws://%s/store", bound))
	pterm.Println()
	util.LogInfo("serving; Ctrl+C to stop")

	<-ctx.Done()
	util.LogInfo("store server stopped")
}
