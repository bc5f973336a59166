package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func serverApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:   "goldium",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name: "server",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				EnvVars: []string{"SERVER_URL"},
			},
		},
	}
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	t.Setenv("SERVER_URL", server.URL)

	var out bytes.Buffer
	err := serverApp(&out).Run([]string{"goldium", "server", "health"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Server is healthy")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	t.Setenv("SERVER_URL", server.URL)

	var out bytes.Buffer
	err := serverApp(&out).Run([]string{"goldium", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHealthCommand_MissingServerURL(t *testing.T) {
	os.Unsetenv("SERVER_URL")

	var out bytes.Buffer
	err := serverApp(&out).Run([]string{"goldium", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-url is required")
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	commit = "abc123"
	date = "2026-10-10"

	var out bytes.Buffer
	err := serverApp(&out).Run([]string{"goldium", "server", "version"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Version: 1.0.0")
	assert.Contains(t, out.String(), "Commit:  abc123")
}
