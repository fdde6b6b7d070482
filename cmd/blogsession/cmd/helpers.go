package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
	"github.com/ComputerAnything/cpta-blog-sub000/blogapi"
	"github.com/ComputerAnything/cpta-blog-sub000/challenge"
	"github.com/ComputerAnything/cpta-blog-sub000/storage"
	bboltstorage "github.com/ComputerAnything/cpta-blog-sub000/storage/bbolt"
	redisstorage "github.com/ComputerAnything/cpta-blog-sub000/storage/redis"
)

const defaultAPIURL = "http://localhost:5000/api"

func resolveAPIURL() string {
	if apiURL != "" {
		return apiURL
	}
	if env := os.Getenv("BLOG_API_URL"); env != "" {
		return env
	}
	return defaultAPIURL
}

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".blogsession"), nil
}

// openStore picks the shared state backend: Redis when BLOG_REDIS_ADDR is
// set, otherwise a BBolt file under the state directory.
func openStore() (storage.Store, func(), error) {
	if addr := os.Getenv("BLOG_REDIS_ADDR"); addr != "" {
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr:     addr,
			Password: os.Getenv("BLOG_REDIS_PASSWORD"),
		})
		return redisstorage.New(rdb, ""), func() { _ = rdb.Close() }, nil
	}

	dir, err := resolveDataDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating state directory: %w", err)
	}
	// The file lock times out instead of blocking forever when another
	// long-lived process holds the database.
	store, err := bboltstorage.Open(filepath.Join(dir, "state.db"),
		&bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// envWidget satisfies the challenge widget contract with a pre-solved
// token, for headless use where the interactive widget cannot run.
type envWidget struct {
	token string
}

func (w *envWidget) Render(cb challenge.Callbacks) error {
	cb.Success(w.token)
	return nil
}

func (w *envWidget) Reset() {}

func buildManager(store storage.Store, cb authflow.Callbacks) (*authflow.Manager, error) {
	client := blogapi.New(resolveAPIURL())

	opts := []authflow.Option{}
	if token := os.Getenv("BLOG_CHALLENGE_TOKEN"); token != "" {
		adapter := challenge.NewAdapter(&envWidget{token: token})
		if err := adapter.Start(); err != nil {
			return nil, err
		}
		opts = append(opts, authflow.WithChallenge(adapter))
	}
	return authflow.New(client, store, cb, opts...), nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func describe(st authflow.State) string {
	switch st.Kind {
	case authflow.KindAuthenticated:
		return fmt.Sprintf("signed in as %s (session expires in %s)",
			st.Session.Username, st.Session.Remaining(time.Now()).Round(time.Second))
	case authflow.KindGuest:
		return "browsing as guest"
	case authflow.KindTwoFactorPending:
		return fmt.Sprintf("waiting for the code sent to %s", st.ContactEmail)
	case authflow.KindLocked:
		return fmt.Sprintf("%s locked, retry in %s", st.LockedOp, st.RetryRemaining.Round(time.Second))
	default:
		return "signed out"
	}
}
