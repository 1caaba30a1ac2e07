// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command mnem is the thin CLI front-end for mnemd: it issues RPC calls
// over the daemon's Unix socket and prints JSON results, auto-spawning the
// daemon if it isn't already running.
//
// Grounded on clients/go/cmd/cxdb-interop-read/main.go's bare flag-based
// main — per spec.md §1 Non-goals, rich CLI argument parsing (subcommand
// frameworks, flags-per-verb help text) is out of scope, so this stays a
// single flag.FlagSet dispatching on the first positional argument.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/strongdm/mnemosyne/internal/client"
	"github.com/strongdm/mnemosyne/internal/daemon"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if err := run(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mnem: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: mnem <command> [args]

commands:
  watch <path>                 start watching a project
  unwatch <path>                stop watching a project
  list                           list registered projects
  status                         show daemon status
  history <project> <file>       list snapshots for a file
  checkpoint <project> [desc]    create a checkpoint
  revert <project> <hash>        revert to a checkpoint
  search <project> <query>       search tracked file contents`)
}

func run(cmd string, args []string) error {
	home, err := daemon.HomeDir()
	if err != nil {
		return err
	}

	rc, err := client.DialReconnecting(
		daemon.SocketPath(home), daemon.TokenPath(home),
		[]client.ReconnectOption{client.WithAutoSpawn(mnemdPath())},
	)
	if err != nil {
		return fmt.Errorf("connect to mnemd: %w", err)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "watch":
		if len(args) < 1 {
			return fmt.Errorf("usage: mnem watch <path>")
		}
		return call(ctx, rc, "mnem/project/watch", map[string]any{"project_path": abs(args[0])})
	case "unwatch":
		if len(args) < 1 {
			return fmt.Errorf("usage: mnem unwatch <path>")
		}
		return call(ctx, rc, "mnem/project/unwatch", map[string]any{"project_path": abs(args[0])})
	case "list":
		return call(ctx, rc, "mnem/project/list", map[string]any{})
	case "status":
		return call(ctx, rc, "mnem/daemon/status", map[string]any{})
	case "history":
		if len(args) < 2 {
			return fmt.Errorf("usage: mnem history <project> <file>")
		}
		return call(ctx, rc, "mnem/snapshot/list", map[string]any{"project_path": abs(args[0]), "file_path": args[1]})
	case "checkpoint":
		if len(args) < 1 {
			return fmt.Errorf("usage: mnem checkpoint <project> [description]")
		}
		desc := ""
		if len(args) > 1 {
			desc = args[1]
		}
		return call(ctx, rc, "mnem/project/checkpoint", map[string]any{"project_path": abs(args[0]), "description": desc})
	case "revert":
		if len(args) < 2 {
			return fmt.Errorf("usage: mnem revert <project> <checkpoint_hash>")
		}
		return call(ctx, rc, "mnem/project/revert", map[string]any{"project_path": abs(args[0]), "checkpoint_hash": args[1]})
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: mnem search <project> <query>")
		}
		return call(ctx, rc, "mnem/content/search", map[string]any{"project_path": abs(args[0]), "query": args[1]})
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func call(ctx context.Context, rc *client.ReconnectingClient, method string, params map[string]any) error {
	var result json.RawMessage
	if err := rc.Call(ctx, method, params, &result); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(json.RawMessage(result), "", "  ")
	if err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(string(pretty))
	return nil
}

func abs(path string) string {
	a, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return a
}

// mnemdPath resolves the mnemd binary mnem should auto-spawn: prefer one
// next to this executable, falling back to $PATH.
func mnemdPath() string {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "mnemd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if found, err := exec.LookPath("mnemd"); err == nil {
		return found
	}
	return "mnemd"
}
