package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"mc-launcher-engine/internal/apperr"
	"mc-launcher-engine/internal/task"
)

const versionManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

// assetsResourceBaseURL is the root asset-object CDN (spec.md §6).
const assetsResourceBaseURL = "https://resources.download.minecraft.net"

// versionManifestEntry is one row of the top-level version manifest.
type versionManifestEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
}

type versionManifestDoc struct {
	Versions []versionManifestEntry `json:"versions"`
}

// assetConfig is the version instance's "assetIndex" descriptor.
type assetConfig struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
	URL       string `json:"url"`
}

type mainDownloadItems struct {
	Client         DownloadItem `json:"client"`
	ClientMappings DownloadItem `json:"client_mappings"`
}

type javaVersion struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

type clientLogging struct {
	Argument string       `json:"argument"`
	File     DownloadItem `json:"file"`
	Type     string       `json:"type"`
}

type loggingDescriptor struct {
	Client clientLogging `json:"client"`
}

// instanceDoc is the raw shape of versions/<id>/<id>.json.
type instanceDoc struct {
	Arguments     LaunchArguments   `json:"arguments"`
	AssetIndex    assetConfig       `json:"assetIndex"`
	Downloads     mainDownloadItems `json:"downloads"`
	ID            string            `json:"id"`
	JavaVersion   javaVersion       `json:"javaVersion"`
	Libraries     json.RawMessage   `json:"libraries"`
	Logging       loggingDescriptor `json:"logging"`
	MainClass     string            `json:"mainClass"`
}

// assetObject is one entry of an asset index's "objects" map.
type assetObject struct {
	VirtualPath string
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
}

type assetIndexDoc struct {
	Objects map[string]struct {
		Hash string `json:"hash"`
		Size int64  `json:"size"`
	} `json:"objects"`
}

// AssetIndex is the parsed asset index, keeping the virtual-path keys
// (SPEC_FULL supplemented feature 4) even though spec.md's cache layout
// only needs the hash.
type AssetIndex struct {
	Objects []assetObject
}

// ResolvedInstance is ManifestResolver.Resolve's output: the concrete Task
// list plus the instance metadata a future launch step would need
// (SPEC_FULL supplemented features 5 and 6 — main class, argument lists,
// and the logging descriptor are recovered from the parse, not discarded,
// even though composing/launching the JVM itself is out of scope).
type ResolvedInstance struct {
	VersionID         string
	MainClass         string
	JavaMajorVersion  int
	GameArguments     []string
	JVMArguments      []string
	LoggingArgument   string
	LoggingConfigTask *task.Task
	AssetIndex        AssetIndex
	Tasks             []task.Task
	NativeLibraries   []NativeLibrary

	// Checksums maps a Task's destination path to the sha1 the manifest
	// chain asserts for it (client jar, library artifacts, asset objects —
	// an asset object's content hash doubles as its sha1). Populated for
	// every Task that carries a known hash; absent entries have none to
	// verify against (spec.md has no checksum for the version-manifest or
	// instance JSON themselves).
	Checksums map[string]string
}

// NativeLibrary marks a resolved library task for ZIP extraction into
// versions/<id>/natives/ (spec.md §4.4 step 5). Extraction itself is an
// external collaborator (spec.md §1 Non-goals).
type NativeLibrary struct {
	Task           task.Task
	ExtractExclude []string
}

// HTTPDoer performs the HTTP GET calls the resolver needs to refresh cached
// manifest JSON. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ManifestResolver implements C4: it ensures the version-manifest,
// version-instance, and asset-index JSON documents are cached locally
// (re-downloading on parse failure, per spec.md §4.4's refresh policy), then
// resolves them plus the admitted library list into a concrete Task set.
type ManifestResolver struct {
	VersionsRoot   string
	LibrariesRoot  string
	AssetsRoot     string
	Client         HTTPDoer
	Evaluator      RuleEvaluator
	UserAgent      string
}

func NewManifestResolver(versionsRoot, librariesRoot, assetsRoot string, client HTTPDoer, host HostProfile) *ManifestResolver {
	return &ManifestResolver{
		VersionsRoot:  versionsRoot,
		LibrariesRoot: librariesRoot,
		AssetsRoot:    assetsRoot,
		Client:        client,
		Evaluator:     NewRuleEvaluator(host),
		UserAgent:     "mc-launcher-engine/1.0",
	}
}

// Resolve drives spec.md §4.4's five-step flow for versionID.
func (r *ManifestResolver) Resolve(ctx context.Context, versionID string) (*ResolvedInstance, error) {
	manifestPath := filepath.Join(r.VersionsRoot, "version_manifest.json")
	var manifestDoc versionManifestDoc
	if err := r.ensureCachedJSON(ctx, manifestPath, versionManifestURL, &manifestDoc); err != nil {
		return nil, apperr.Wrap(apperr.Transport, "manifest.Resolve", err)
	}

	var entry *versionManifestEntry
	for i := range manifestDoc.Versions {
		if manifestDoc.Versions[i].ID == versionID {
			entry = &manifestDoc.Versions[i]
			break
		}
	}
	if entry == nil {
		return nil, apperr.New(apperr.InvalidVersion, "manifest.Resolve", fmt.Sprintf("unknown version id %q", versionID))
	}

	instancePath := filepath.Join(r.VersionsRoot, versionID, versionID+".json")
	var instance instanceDoc
	if err := r.ensureCachedJSON(ctx, instancePath, entry.URL, &instance); err != nil {
		return nil, apperr.Wrap(apperr.Transport, "manifest.Resolve", err)
	}

	assetIndexPath := filepath.Join(r.AssetsRoot, "indexes", instance.AssetIndex.ID+".json")
	var rawIndex assetIndexDoc
	if err := r.ensureCachedJSON(ctx, assetIndexPath, instance.AssetIndex.URL, &rawIndex); err != nil {
		return nil, apperr.Wrap(apperr.Transport, "manifest.Resolve", err)
	}

	assetIndex := AssetIndex{Objects: make([]assetObject, 0, len(rawIndex.Objects))}
	for virtualPath, obj := range rawIndex.Objects {
		assetIndex.Objects = append(assetIndex.Objects, assetObject{
			VirtualPath: virtualPath,
			Hash:        obj.Hash,
			Size:        obj.Size,
		})
	}

	result := &ResolvedInstance{
		VersionID:        versionID,
		MainClass:        instance.MainClass,
		JavaMajorVersion: instance.JavaVersion.MajorVersion,
		GameArguments:    instance.Arguments.ResolveGame(r.Evaluator),
		JVMArguments:     instance.Arguments.ResolveJVM(r.Evaluator),
		LoggingArgument:  instance.Logging.Client.Argument,
		AssetIndex:       assetIndex,
		Checksums:        make(map[string]string),
	}
	if instance.Logging.Client.File.URL != "" {
		t := instance.Logging.Client.File.ToTask(filepath.Join(r.AssetsRoot, "log_configs", instance.Logging.Client.File.Path))
		result.LoggingConfigTask = &t
	}

	// Main client jar -> versions/<id>/<id>.jar
	clientJar := instance.Downloads.Client.ToTask(filepath.Join(r.VersionsRoot, versionID, versionID+".jar"))
	result.Tasks = append(result.Tasks, clientJar)
	if instance.Downloads.Client.SHA1 != "" {
		result.Checksums[clientJar.Path] = instance.Downloads.Client.SHA1
	}

	// Admitted libraries -> libraries/<download_item.path>
	for _, lib := range parseLibraries(instance.Libraries) {
		item, ok := lib.Resolve(r.Evaluator)
		if !ok {
			continue
		}
		t := item.ToTask(filepath.Join(r.LibrariesRoot, item.Path))
		if item.SHA1 != "" {
			result.Checksums[t.Path] = item.SHA1
		}
		if lib.IsNative {
			result.NativeLibraries = append(result.NativeLibraries, NativeLibrary{
				Task:           t,
				ExtractExclude: lib.ExtractExclude,
			})
		}
		result.Tasks = append(result.Tasks, t)
	}

	// Asset objects -> assets/objects/<hh>/<hash>
	for _, obj := range assetIndex.Objects {
		if len(obj.Hash) < 2 {
			continue
		}
		prefix := obj.Hash[:2]
		url := fmt.Sprintf("%s/%s/%s", assetsResourceBaseURL, prefix, obj.Hash)
		path := filepath.Join(r.AssetsRoot, "objects", prefix, obj.Hash)
		result.Tasks = append(result.Tasks, task.Task{URL: url, Path: path, Size: obj.Size})
		result.Checksums[path] = obj.Hash
	}

	return result, nil
}

// ensureCachedJSON loads path and unmarshals it into out; on any read or
// parse failure it re-downloads from url and retries the unmarshal once, per
// spec.md §4.4 "a cached file is trusted iff it parses successfully".
func (r *ManifestResolver) ensureCachedJSON(ctx context.Context, path, url string, out any) error {
	if data, err := os.ReadFile(path); err == nil {
		if json.Unmarshal(data, out) == nil {
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.UrlParse, "manifest.ensureCachedJSON", err)
	}
	req.Header.Set("User-Agent", r.UserAgent)

	resp, err := r.Client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transport, "manifest.ensureCachedJSON", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperr.New(apperr.Transport, "manifest.ensureCachedJSON", fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.Transport, "manifest.ensureCachedJSON", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.Parse, "manifest.ensureCachedJSON", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.FilesystemIO, "manifest.ensureCachedJSON", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return apperr.Wrap(apperr.FilesystemIO, "manifest.ensureCachedJSON", err)
	}
	return nil
}
