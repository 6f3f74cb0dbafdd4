// Package main implements a small CLI that resolves a Minecraft version id
// through ManifestResolver and prints the resolved instance (its Task list,
// not split into chunks, plus main class and arguments) as JSON. Adapted from
// the teacher's cmd/builder/main.go command-switch shape, trimmed to the
// one operation this tool needs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"mc-launcher-engine/internal/manifest"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage()
	default:
		if err := fetch(os.Args[1]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Println(`fetchmeta: resolve a Minecraft version id and print its task list

Usage: go run cmd/fetchmeta/main.go <version-id>`)
}

func fetch(versionID string) error {
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		cacheRoot = "."
	}
	root := filepath.Join(cacheRoot, "mc-launcher-engine")

	client := &http.Client{Timeout: 60 * time.Second}
	resolver := manifest.NewManifestResolver(
		filepath.Join(root, "versions"),
		filepath.Join(root, "libraries"),
		filepath.Join(root, "assets"),
		client,
		manifest.DefaultHostProfile(runtime.GOOS, runtime.GOARCH, ""),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resolved, err := resolver.Resolve(ctx, versionID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resolved)
}
