// Package cachekey derives cache-entry file names, asset directory paths,
// and served asset URLs from document identity and commit reference.
//
// All derivations are pure: no I/O, no clock, no process state. Two calls
// with identical arguments yield identical paths across process restarts,
// which is what makes the rendered-document cache commit-addressed.
package cachekey

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/starford/perth/internal/checksum"
)

// assetSuffix marks a directory as generated by rendering, so it can never
// collide with a source file of the same stem.
const assetSuffix = "_files"

// DocCacheName returns the cache file name for a rendered document:
// <repoID>-<sha256(filePath)>-<commitRef>.json, relative to the docs cache
// root. The file path component is hashed rather than embedded so that
// nested or unusual paths cannot produce invalid file names.
func DocCacheName(repoID int64, filePath, commitRef string) string {
	return fmt.Sprintf("%d-%s-%s.json", repoID, checksum.SumString(filePath), commitRef)
}

// DocCachePrefix returns the file-name prefix shared by every cache entry
// of a repository. Used by eviction to match a repository's entries.
func DocCachePrefix(repoID int64) string {
	return strconv.FormatInt(repoID, 10) + "-"
}

// AssetDir returns the asset directory for (repoID, commitRef, document),
// relative to the assets cache root:
// assets/<repoID>/<commitRef>/<stem>_files.
func AssetDir(repoID int64, commitRef, docPath string) string {
	return path.Join("assets", strconv.FormatInt(repoID, 10), commitRef, DocStem(docPath)+assetSuffix)
}

// AssetURL returns the stable served URL for one materialized asset:
// /<route>/<repoID>/<commitRef>/<stem>_files/<name>. It is derivable from
// its arguments alone; serving requires no state lookup.
func AssetURL(route string, repoID int64, commitRef, docPath, name string) string {
	return "/" + path.Join(route, strconv.FormatInt(repoID, 10), commitRef, DocStem(docPath)+assetSuffix, name)
}

// DocStem returns the document's base name without its extension.
func DocStem(docPath string) string {
	base := path.Base(docPath)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
