package filesystem

import (
	"path/filepath"
)

// CacheLayout computes on-disk paths for the launcher's cache root, per
// spec.md §6's filesystem layout. Repurposed from the teacher's
// SmartOrganizer (category-by-extension file placement) into the fixed,
// manifest-driven layout this domain actually needs: versions, assets and
// libraries each have one canonical location, not a sorted-by-type one.
type CacheLayout struct {
	Root string
}

func NewCacheLayout(root string) *CacheLayout {
	return &CacheLayout{Root: root}
}

// VersionManifestPath returns versions/version_manifest.json.
func (c *CacheLayout) VersionManifestPath() string {
	return filepath.Join(c.Root, "versions", "version_manifest.json")
}

// VersionInstancePath returns versions/<id>/<id>.json.
func (c *CacheLayout) VersionInstancePath(versionID string) string {
	return filepath.Join(c.Root, "versions", versionID, versionID+".json")
}

// VersionJarPath returns versions/<id>/<id>.jar.
func (c *CacheLayout) VersionJarPath(versionID string) string {
	return filepath.Join(c.Root, "versions", versionID, versionID+".jar")
}

// AssetIndexPath returns assets/indexes/<assetIndexID>.json.
func (c *CacheLayout) AssetIndexPath(assetIndexID string) string {
	return filepath.Join(c.Root, "assets", "indexes", assetIndexID+".json")
}

// AssetObjectPath returns assets/objects/<hh>/<hash>, where hh is the
// object hash's first two hex characters (Mojang's CDN sharding scheme).
func (c *CacheLayout) AssetObjectPath(hash string) string {
	prefix := hash
	if len(hash) >= 2 {
		prefix = hash[:2]
	}
	return filepath.Join(c.Root, "assets", "objects", prefix, hash)
}

// LibraryPath returns libraries/<path from manifest>.
func (c *CacheLayout) LibraryPath(manifestPath string) string {
	return filepath.Join(c.Root, "libraries", manifestPath)
}

// VersionsRoot, LibrariesRoot and AssetsRoot are the three directories a
// ManifestResolver is constructed with.
func (c *CacheLayout) VersionsRoot() string  { return filepath.Join(c.Root, "versions") }
func (c *CacheLayout) LibrariesRoot() string { return filepath.Join(c.Root, "libraries") }
func (c *CacheLayout) AssetsRoot() string    { return filepath.Join(c.Root, "assets") }
