package drive

import "fmt"

const maxAncestryDepth = 16

// FolderCache memoizes folder lookups for the duration of a polling cycle.
// Callers construct one per cycle and pass it through explicitly.
type FolderCache struct {
	folders map[string]*Folder
}

func NewFolderCache() *FolderCache {
	return &FolderCache{folders: map[string]*Folder{}}
}

func (c *FolderCache) lookup(provider Provider, id string) (*Folder, error) {
	if folder, ok := c.folders[id]; ok {
		return folder, nil
	}
	folder, err := provider.GetFolder(id)
	if err != nil {
		return nil, err
	}
	c.folders[id] = folder
	return folder, nil
}

// Ancestry describes where a file sits relative to the watched folder.
// Segments are the folder names between the watch root and the file,
// outermost first; Parent is the file's immediate parent folder.
type Ancestry struct {
	Contained bool
	Segments  []string
	Parent    *Folder
}

// PathResolver walks a file's parent chain toward the watched folder.
type PathResolver struct {
	provider      Provider
	watchFolderID string
}

func NewPathResolver(provider Provider, watchFolderID string) *PathResolver {
	return &PathResolver{provider: provider, watchFolderID: watchFolderID}
}

// Resolve follows the first-parent chain upward until it reaches the watch
// root, runs out of parents, or exceeds the depth limit. Files directly in
// the watch root are contained with no segments.
func (r *PathResolver) Resolve(parents []string, cache *FolderCache) (Ancestry, error) {
	if len(parents) == 0 {
		return Ancestry{}, nil
	}
	if parents[0] == r.watchFolderID {
		folder, err := cache.lookup(r.provider, parents[0])
		if err != nil {
			return Ancestry{}, err
		}
		return Ancestry{Contained: true, Parent: folder}, nil
	}

	var segments []string
	var parent *Folder
	currentID := parents[0]

	for depth := 0; depth < maxAncestryDepth; depth++ {
		folder, err := cache.lookup(r.provider, currentID)
		if err != nil {
			return Ancestry{}, fmt.Errorf("resolve folder %s: %w", currentID, err)
		}
		if folder == nil {
			return Ancestry{}, nil
		}
		if parent == nil {
			parent = folder
		}
		segments = append([]string{folder.Name}, segments...)

		if len(folder.Parents) == 0 {
			return Ancestry{}, nil
		}
		if folder.Parents[0] == r.watchFolderID {
			return Ancestry{Contained: true, Segments: segments, Parent: parent}, nil
		}
		currentID = folder.Parents[0]
	}

	return Ancestry{}, nil
}
