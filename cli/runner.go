// Package cli implements the demo command: it signs in against an identity
// service (or an embedded mock), prints the derived authorization view and
// exercises the refresh path.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/viant/authkit"
	"github.com/viant/authkit/mock"
	"github.com/viant/authkit/session"
	"github.com/viant/authkit/store"
)

// Run parses args and executes the demo flow.
func Run(args []string) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		return err
	}
	ctx := context.Background()

	logger := slog.New(slog.DiscardHandler)
	if options.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	baseURL := options.URL
	if baseURL == "" {
		identity, err := mock.New()
		if err != nil {
			return err
		}
		server := httptest.NewServer(identity.Handler())
		defer server.Close()
		baseURL = server.URL
		fmt.Printf("using embedded identity service at %v\n", baseURL)
	}

	credentials, err := newStore(options)
	if err != nil {
		return err
	}
	core, err := authkit.New(ctx, &authkit.Config{BaseURL: baseURL},
		authkit.WithStore(credentials),
		authkit.WithLogger(logger),
		authkit.WithExpiryListener(func() {
			fmt.Println("session expired: sign-in required")
		}),
	)
	if err != nil {
		return err
	}

	if core.Session.Authenticated() {
		fmt.Printf("restored persisted session for %v\n", core.Session.User().Username)
	} else {
		result := core.Session.Login(ctx, session.Credentials{
			Username: options.Username,
			Password: options.Password,
		})
		if !result.OK {
			return fmt.Errorf("login failed: %v", result.Message)
		}
		fmt.Printf("signed in as %v (%v)\n", result.User.Name, result.User.Role)
	}

	fmt.Printf("state: %v, token expired: %v\n", core.Session.State(), core.Session.IsTokenExpired())
	fmt.Printf("effective permissions: %v\n", strings.Join(core.Permissions.EffectivePermissions(), ", "))

	menu, err := json.MarshalIndent(core.Permissions.MenuVisibility(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("menu visibility: %s\n", menu)

	user, err := core.Session.Me(ctx)
	if err != nil {
		return fmt.Errorf("session probe failed: %w", err)
	}
	fmt.Printf("server sees: %v\n", user.Username)

	if options.Logout {
		core.Session.Logout(ctx)
		fmt.Println("signed out")
	}
	return nil
}

func newStore(options *Options) (store.Store, error) {
	switch options.Store {
	case "memory", "":
		return store.NewMemoryStore(), nil
	case "file":
		if options.StoreURL == "" {
			return nil, errors.New("--store-url is required for the file store")
		}
		return store.NewFileStore(options.StoreURL), nil
	case "secure":
		if options.StoreURL == "" {
			return nil, errors.New("--store-url is required for the secure store")
		}
		return store.NewSecureStore(options.StoreURL), nil
	}
	return nil, fmt.Errorf("unknown store backend: %v", options.Store)
}
