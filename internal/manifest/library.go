package manifest

import (
	"encoding/json"

	"mc-launcher-engine/internal/apperr"
	"mc-launcher-engine/internal/task"
)

// DownloadItem is one downloadable artifact described in the manifest
// (spec.md §3 "DownloadItem").
type DownloadItem struct {
	Path string `json:"path"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// ToTask builds the C1 Task that fetches this item to destPath.
func (d DownloadItem) ToTask(destPath string) task.Task {
	return task.Task{URL: d.URL, Path: destPath, Size: d.Size}
}

// libraryDownload is the raw "downloads" block of a library manifest entry:
// a default artifact plus an optional per-OS classifier map.
type libraryDownload struct {
	Artifact    DownloadItem               `json:"artifact"`
	Classifiers map[string]json.RawMessage `json:"classifiers"`
}

// Library is one entry in the version instance's library list. A library is
// native when the manifest supplies downloads.classifiers; the resolver
// selects the classifier matching the current host (spec.md §3 "Library",
// §4.3 "Native-classifier selection").
type Library struct {
	Name           string
	IsNative       bool
	ExtractExclude []string

	rules      []Rule
	artifact   DownloadItem
	classifier struct {
		present bool
		byOS    map[string]string // host-os -> classifier key, from "natives"
	}
	download libraryDownload
}

// rawLibrary mirrors the JSON shape of one element of the version instance's
// "libraries" array.
type rawLibrary struct {
	Name      string            `json:"name"`
	Downloads libraryDownload   `json:"downloads"`
	Natives   map[string]string `json:"natives"`
	Rules     []Rule            `json:"rules"`
	Extract   *struct {
		Exclude []string `json:"exclude"`
	} `json:"extract"`
}

// UnmarshalJSON parses one library entry. Per SPEC_FULL's supplemented
// feature 3 (original_source's deserialize_skip_error), a single malformed
// library must not fail the surrounding list parse — that tolerance is
// implemented by the caller (parseLibraries), not here; this method only
// needs to fail cleanly on its own malformed input.
func (l *Library) UnmarshalJSON(data []byte) error {
	var raw rawLibrary
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.Parse, "manifest.Library.UnmarshalJSON", err)
	}

	l.Name = raw.Name
	l.rules = raw.Rules
	l.download = raw.Downloads
	l.artifact = raw.Downloads.Artifact
	l.IsNative = len(raw.Downloads.Classifiers) > 0
	l.classifier.byOS = raw.Natives
	l.classifier.present = len(raw.Downloads.Classifiers) > 0
	if raw.Extract != nil {
		l.ExtractExclude = raw.Extract.Exclude
	}
	return nil
}

// Resolve admits the library against evaluator's host and, if admitted,
// produces its DownloadItem: the plain artifact for a non-native library,
// or the classifier selected by natives[hostOS] for a native one. Returns
// (item, false) when the library is dropped — denied by rules, or (being
// native) missing a classifier entry for this host, per spec.md §4.3.
func (l Library) Resolve(evaluator RuleEvaluator) (DownloadItem, bool) {
	if !evaluator.Admits(l.rules) {
		return DownloadItem{}, false
	}

	if !l.IsNative {
		return l.artifact, true
	}

	key, ok := l.classifier.byOS[evaluator.Host.OSName]
	if !ok || key == "" {
		return DownloadItem{}, false
	}
	raw, ok := l.download.Classifiers[key]
	if !ok {
		return DownloadItem{}, false
	}
	var item DownloadItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return DownloadItem{}, false
	}
	return item, true
}

// parseLibraries parses the raw JSON array element-by-element, dropping any
// element that fails to deserialize as a Library instead of failing the
// whole parse — SPEC_FULL supplemented feature 3, ported from
// original_source's deserialize_skip_error.
func parseLibraries(raw json.RawMessage) []Library {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil
	}
	libs := make([]Library, 0, len(elements))
	for _, elem := range elements {
		var lib Library
		if err := json.Unmarshal(elem, &lib); err == nil {
			libs = append(libs, lib)
		}
	}
	return libs
}
