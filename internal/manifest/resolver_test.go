package manifest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mc-launcher-engine/internal/apperr"
)

// fakeDoer serves canned JSON bodies keyed by request URL, standing in for
// the real Mojang/CDN endpoints during resolver tests.
type fakeDoer struct {
	bodies map[string]string
	calls  int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	body, ok := f.bodies[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

const fakeInstanceURL = "https://launchermeta.mojang.com/v1/packages/fake/1.20.json"
const fakeAssetIndexURL = "https://launchermeta.mojang.com/v1/packages/fake/13.json"

func newFakeDoer() *fakeDoer {
	manifestDoc := `{"versions": [{"id": "1.20", "type": "release", "url": "` + fakeInstanceURL + `", "time": "", "releaseTime": ""}]}`

	instanceDoc := `{
		"id": "1.20",
		"mainClass": "net.minecraft.client.main.Main",
		"arguments": {"game": ["--username", "${auth_player_name}"], "jvm": ["-Xmx2G"]},
		"assetIndex": {"id": "13", "sha1": "x", "size": 1, "totalSize": 1, "url": "` + fakeAssetIndexURL + `"},
		"downloads": {"client": {"url": "https://client.example/client.jar", "sha1": "a", "size": 100, "path": ""}},
		"javaVersion": {"component": "java-runtime", "majorVersion": 17},
		"libraries": [
			{"name": "good:one:1.0", "downloads": {"artifact": {"url": "https://libs.example/one.jar", "sha1": "b", "size": 10, "path": "good/one.jar"}}},
			{"name": "native:thing:1.0", "natives": {"linux": "natives-linux"},
			 "downloads": {"classifiers": {"natives-linux": {"url": "https://libs.example/native.jar", "sha1": "c", "size": 20, "path": "native/thing.jar"}}}}
		],
		"logging": {"client": {"argument": "-Dlog4j.configurationFile=${path}", "file": {"url": "https://libs.example/log4j.xml", "sha1": "d", "size": 5, "path": "log4j.xml"}, "type": "log4j2-xml"}}
	}`

	assetIndexDoc := `{"objects": {"icons/icon.png": {"hash": "abcdef1234567890", "size": 30}}}`

	return &fakeDoer{bodies: map[string]string{
		versionManifestURL: manifestDoc,
		fakeInstanceURL:    instanceDoc,
		fakeAssetIndexURL:  assetIndexDoc,
	}}
}

func TestManifestResolverEndToEnd(t *testing.T) {
	root := t.TempDir()
	doer := newFakeDoer()
	resolver := NewManifestResolver(
		filepath.Join(root, "versions"),
		filepath.Join(root, "libraries"),
		filepath.Join(root, "assets"),
		doer,
		HostProfile{OSName: "linux", Arch: "x86_64"},
	)

	result, err := resolver.Resolve(context.Background(), "1.20")
	require.NoError(t, err)

	require.Equal(t, "net.minecraft.client.main.Main", result.MainClass)
	require.Equal(t, 17, result.JavaMajorVersion)
	require.Contains(t, result.GameArguments, "--username")
	require.Contains(t, result.JVMArguments, "-Xmx2G")
	require.NotNil(t, result.LoggingConfigTask)

	// client jar + 2 libraries + 1 asset object == 4 tasks
	require.Len(t, result.Tasks, 4)
	require.Len(t, result.NativeLibraries, 1)

	// Checksums carries a sha1 for every task that has one: client jar,
	// both libraries, and the asset object (whose "hash" doubles as sha1).
	require.Len(t, result.Checksums, 4)
	jarPath := filepath.Join(root, "versions", "1.20", "1.20.jar")
	require.Equal(t, "a", result.Checksums[jarPath])

	// cached JSON must now be on disk for the next run to reuse.
	_, err = os.Stat(filepath.Join(root, "versions", "version_manifest.json"))
	require.NoError(t, err)
}

func TestManifestResolverUnknownVersion(t *testing.T) {
	root := t.TempDir()
	doer := newFakeDoer()
	resolver := NewManifestResolver(
		filepath.Join(root, "versions"),
		filepath.Join(root, "libraries"),
		filepath.Join(root, "assets"),
		doer,
		HostProfile{OSName: "linux"},
	)

	_, err := resolver.Resolve(context.Background(), "nonexistent")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.InvalidVersion))
}

func TestManifestResolverRefreshesOnParseFailure(t *testing.T) {
	root := t.TempDir()
	versionsDir := filepath.Join(root, "versions")
	require.NoError(t, os.MkdirAll(versionsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionsDir, "version_manifest.json"), []byte("not json"), 0o644))

	doer := newFakeDoer()
	resolver := NewManifestResolver(versionsDir, filepath.Join(root, "libraries"), filepath.Join(root, "assets"), doer, HostProfile{OSName: "linux"})

	_, err := resolver.Resolve(context.Background(), "1.20")
	require.NoError(t, err)
	require.GreaterOrEqual(t, doer.calls, 1, "a corrupt cache entry must trigger a re-download")
}
