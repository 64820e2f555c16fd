package e2e_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/dragonrealm/internal/factory"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "drealm-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/drealm")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	// Create temp token file
	tokenFile := filepath.Join(t.TempDir(), "token")

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  tokenFile,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runWithToken(token string, args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token", token,
		"--token-file", filepath.Join(filepath.Dir(r.tokenFile), "unused"),
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.App
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	// Create application
	ctx, cancel := context.WithCancel(context.Background())
	app, err := factory.New(ctx, factory.Config{AuthConfig: factory.TestAuthConfig()})
	require.NoError(t, err)
	require.NoError(t, app.AuthService.EnsureAdmin(ctx, "root", "rootpassword"))

	server := &http.Server{
		Addr:    addr,
		Handler: app.Router(),
	}

	// Start server and background loops
	go func() { _ = app.Run(ctx) }()
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	// Wait for server to be ready
	serverURL := "http://" + addr
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
			cancel()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	IsAdmin  bool   `json:"isAdmin"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type eventLine struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	var resp healthResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Connections)
}

func TestCLI_UserCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	// Register
	output, err := cli.run("user", "register", "--user", "alice", "--pass", "secret123", "--nickname", "Alice")
	require.NoError(t, err, "output: %s", output)

	var authResp authResponse
	require.NoError(t, json.Unmarshal([]byte(output), &authResp))
	assert.Equal(t, "Alice", authResp.User.Nickname)
	assert.NotEmpty(t, authResp.Token)

	// Get me (token should be saved in token file)
	output, err = cli.run("user", "me")
	require.NoError(t, err, "output: %s", output)

	var me userResponse
	require.NoError(t, json.Unmarshal([]byte(output), &me))
	assert.Equal(t, authResp.User.ID, me.ID)

	// Change nickname
	output, err = cli.run("user", "nickname", "Queen Alice")
	require.NoError(t, err, "output: %s", output)
	require.NoError(t, json.Unmarshal([]byte(output), &me))
	assert.Equal(t, "Queen Alice", me.Nickname)

	// Too short
	output, err = cli.run("user", "nickname", "Q")
	assert.Error(t, err)
	assert.Contains(t, output, "OUT_OF_RANGE")

	// Logout forgets the token
	output, err = cli.run("user", "logout")
	require.NoError(t, err, "output: %s", output)
	var msg messageResponse
	require.NoError(t, json.Unmarshal([]byte(output), &msg))
	assert.Equal(t, "Logged out", msg.Message)

	output, err = cli.run("user", "me")
	assert.Error(t, err)
	assert.Contains(t, output, "not logged in")

	// The old token is dead on the server too
	output, err = cli.runWithToken(authResp.Token, "user", "me")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")

	// Login again
	output, err = cli.run("user", "login", "--user", "alice", "--pass", "secret123")
	require.NoError(t, err, "output: %s", output)
	output, err = cli.run("user", "me")
	require.NoError(t, err, "output: %s", output)
}

func TestCLI_WorldCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("world")
	require.NoError(t, err, "output: %s", output)
	var world struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &world))
	assert.Equal(t, 800.0, world.Width)
	assert.Equal(t, 600.0, world.Height)

	output, err = cli.run("world", "dragons")
	require.NoError(t, err, "output: %s", output)
	var dragons []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &dragons))
	assert.Len(t, dragons, 4)

	// Online and collectibles need a session
	_, err = cli.run("world", "online")
	assert.Error(t, err)

	output, err = cli.run("user", "register", "--user", "alice", "--pass", "secret123")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("world", "collectibles")
	require.NoError(t, err, "output: %s", output)
	var items []struct {
		ID        string `json:"id"`
		Collected bool   `json:"collected"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &items))
	assert.Len(t, items, 5)
}

func TestCLI_AdminCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("user", "register", "--user", "alice", "--pass", "secret123")
	require.NoError(t, err, "output: %s", output)
	var alice authResponse
	require.NoError(t, json.Unmarshal([]byte(output), &alice))

	// Regular users are refused
	output, err = cli.runWithToken(alice.Token, "admin", "sessions")
	assert.Error(t, err)
	assert.Contains(t, output, "FORBIDDEN")

	output, err = cli.run("user", "login", "--user", "root", "--pass", "rootpassword")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("admin", "create-user", "--user", "keeper", "--pass", "secret123", "--admin")
	require.NoError(t, err, "output: %s", output)
	var keeper userResponse
	require.NoError(t, json.Unmarshal([]byte(output), &keeper))
	assert.True(t, keeper.IsAdmin)

	output, err = cli.run("admin", "users")
	require.NoError(t, err, "output: %s", output)
	var users []userResponse
	require.NoError(t, json.Unmarshal([]byte(output), &users))
	assert.Len(t, users, 3)

	output, err = cli.run("admin", "sessions")
	require.NoError(t, err, "output: %s", output)
	var sessions []sessionResponse
	require.NoError(t, json.Unmarshal([]byte(output), &sessions))

	var aliceSession string
	for _, s := range sessions {
		if s.Username == "alice" {
			aliceSession = s.ID
		}
	}
	require.NotEmpty(t, aliceSession)

	output, err = cli.run("admin", "terminate", aliceSession)
	require.NoError(t, err, "output: %s", output)

	output, err = cli.runWithToken(alice.Token, "user", "me")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")
}

func TestCLI_ConnectStreamsEvents(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("user", "register", "--user", "alice", "--pass", "secret123", "--nickname", "Alice")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("connect", "--json", "--dragon", "gold", "--duration", "500ms")
	require.NoError(t, err, "output: %s", output)

	var types []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		var ev eventLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), "line: %s", scanner.Text())
		types = append(types, ev.Type)

		if ev.Type == "welcome" {
			var welcome struct {
				User userResponse `json:"user"`
			}
			require.NoError(t, json.Unmarshal(ev.Payload, &welcome))
			assert.Equal(t, "Alice", welcome.User.Nickname)
		}
	}
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, []string{"welcome", "presence_snapshot", "collectibles_state"}, types[:3])

	// Disconnecting removes the presence entry
	assert.Eventually(t, func() bool { return ts.app.Registry.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestCLI_ConnectRejectsBadToken(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.runWithToken("not-a-token", "connect", "--duration", "200ms")
	assert.Error(t, err)
	assert.Contains(t, output, "HTTP 401")
}
