// Librecall — CLI entry point.
//
// This tool establishes a two-party audio/video call over WebRTC. All
// connection negotiation goes through a shared signaling store (signald);
// after that, media flows peer-to-peer.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (--role, --call, --store).
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/librecall/librecall/internal/app"
	"github.com/librecall/librecall/internal/config"
	"github.com/librecall/librecall/internal/store"
	"github.com/librecall/librecall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C (hang up).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	role := pflag.String("role", "", "Role: create or join")
	callID := pflag.String("call", "", "Invite token of the call to join (join only)")
	storeURL := pflag.String("store", "", "WebSocket URL of the signaling store (signald)")
	noVideo := pflag.Bool("no-video", false, "Audio-only call")
	debugMode := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Librecall — v%s", version))
	pterm.Println()

	cfg := config.Config{
		Role:     config.Role(*role),
		CallID:   strings.TrimSpace(*callID),
		StoreURL: *storeURL,
		Video:    !*noVideo,
	}

	switch cfg.Role {
	case "":
		// No --role flag → interactive mode.
		cfg = askConfig(cfg)

	case config.RoleCreator, config.RoleJoiner:
		if cfg.StoreURL == "" {
			util.LogError("missing --store URL")
			os.Exit(1)
		}
		if cfg.Role == config.RoleJoiner && cfg.CallID == "" {
			util.LogError("missing --call invite token for join role")
			os.Exit(1)
		}

	default:
		util.LogError("invalid --role: must be 'create' or 'join'")
		os.Exit(1)
	}

	normalized, err := normalizeStoreURL(cfg.StoreURL)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	cfg.StoreURL = normalized

	st, err := store.Dial(ctx, cfg.StoreURL)
	if err != nil {
		util.LogError("failed to reach signaling store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Role == config.RoleCreator {
		err = app.RunCreator(ctx, st, cfg)
	} else {
		err = app.RunJoiner(ctx, st, cfg)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("call closed")
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// askConfig gathers the configuration through interactive prompts when no
// --role flag is provided.
func askConfig(cfg config.Config) config.Config {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Create a call — get an invite token", "Join a call — enter an invite token"}).
		WithDefaultText("What would you like to do?").
		Show()

	pterm.Println()

	if cfg.StoreURL == "" {
		cfg.StoreURL = askStoreURL()
	}

	if strings.HasPrefix(choice, "Create") {
		cfg.Role = config.RoleCreator
	} else {
		cfg.Role = config.RoleJoiner
		cfg.CallID = askCallID()
	}
	return cfg
}

// askStoreURL prompts for a valid signald URL until one is entered.
func askStoreURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling store URL (e.g. ws://example.com:8787)").
			Show()

		storeURL, err := normalizeStoreURL(raw)
		if err == nil {
			pterm.Println()
			return storeURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askCallID prompts for a non-empty invite token.
func askCallID() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Invite token").
			Show()

		if token := strings.TrimSpace(raw); token != "" {
			pterm.Println()
			return token
		}

		util.LogWarning("invite token must not be empty")
		pterm.Println()
	}
}

// normalizeStoreURL validates and normalizes a raw store URL string.
func normalizeStoreURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid store URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/store", scheme, u.Host), nil
}
