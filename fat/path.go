package fat

import (
	"strings"

	"tinyfat/ferrors"
)

// resolved locates one path component's 8.3 directory slot plus the
// assembled Entry describing it.
type resolved struct {
	cluster uint32 // first cluster of the entry (0 for a file-less lookup miss)
	sector  int64
	offset  int
	entry   Entry
	found   bool
}

// splitPath collapses repeated slashes and drops "." segments, per §4.5.
// A leading slash marks an absolute path; callers that receive a relative
// path resolve it against the current working directory cluster instead.
func splitPath(path string) (absolute bool, parts []string) {
	absolute = strings.HasPrefix(path, "/")
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	return absolute, parts
}

// resolvePath walks path component by component, starting from the volume
// root for an absolute path or from the current directory for a relative
// one, returning the terminal component's location. ".." is resolved via an
// explicit parent-cluster stack rather than the on-disk ".." entry, since a
// corrupt or stale ".." pointer must never be able to walk the resolver
// outside the volume. startCluster is accepted for callers that already
// know it equals v.cwdCluster; the ancestor stack needed for ".." is always
// rebuilt from v.cwdPath, since a bare cluster number carries no ancestry.
func (v *Volume) resolvePath(startCluster uint32, path string) (resolved, error) {
	absolute, parts := splitPath(path)

	cluster, stack, err := v.ancestorStack(absolute)
	if err != nil {
		return resolved{}, err
	}

	if len(parts) == 0 {
		return resolved{cluster: cluster, found: true, entry: Entry{
			Attr: attrDirectory, Cluster: cluster,
		}}, nil
	}

	for i, name := range parts {
		last := i == len(parts)-1
		if name == ".." {
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			cluster = stack[len(stack)-1]
			if last {
				return resolved{cluster: cluster, found: true, entry: Entry{
					Attr: attrDirectory, Cluster: cluster,
				}}, nil
			}
			continue
		}

		entry, sector, offset, err := v.lookupInDir(cluster, name)
		if err != nil {
			return resolved{}, err
		}
		if !entry.found {
			return resolved{}, ferrors.New(ferrors.NotFound, "fat.resolvePath")
		}
		if last {
			return resolved{
				cluster: entry.entry.Cluster,
				sector:  sector,
				offset:  offset,
				entry:   entry.entry,
				found:   true,
			}, nil
		}
		if !entry.entry.IsDir() {
			return resolved{}, ferrors.New(ferrors.NotDir, "fat.resolvePath")
		}
		cluster = entry.entry.Cluster
		stack = append(stack, cluster)
	}
	return resolved{}, ferrors.New(ferrors.NotFound, "fat.resolvePath")
}

// ancestorStack returns the starting cluster and its full chain of ancestor
// clusters (root first) for the given path kind. For an absolute path this
// is trivially just the volume root. For a relative path it is rebuilt by
// walking v.cwdPath from the root, since v.cwdCluster alone carries no
// record of how we got there and ".." must be able to walk back up.
func (v *Volume) ancestorStack(absolute bool) (uint32, []uint32, error) {
	root := v.rootDirCluster()
	if absolute {
		return root, []uint32{root}, nil
	}

	_, cwdParts := splitPath(v.cwdPath)
	cluster := root
	stack := []uint32{root}
	for _, seg := range cwdParts {
		lookup, _, _, err := v.lookupInDir(cluster, seg)
		if err != nil {
			return 0, nil, err
		}
		if !lookup.found {
			return 0, nil, ferrors.New(ferrors.Internal, "fat.ancestorStack: cwd vanished")
		}
		cluster = lookup.entry.Cluster
		stack = append(stack, cluster)
	}
	return cluster, stack, nil
}

func (v *Volume) rootDirCluster() uint32 {
	if v.typ == kindFAT32 {
		return v.rootCluster
	}
	return 0
}

// lookupEntry pairs an Entry with whether the scan found a matching name.
type lookupEntry struct {
	entry Entry
	found bool
}

// lookupInDir scans the directory at cluster for a case-insensitive match
// against either the assembled LFN or the 8.3 display name.
func (v *Volume) lookupInDir(cluster uint32, name string) (lookupEntry, int64, int, error) {
	cur := newDirCursor(v, cluster)
	target := strings.ToLower(name)
	for {
		ent, err := cur.next()
		if err != nil {
			if ferrors.KindOf(err) == ferrors.Eof {
				return lookupEntry{}, 0, 0, nil
			}
			return lookupEntry{}, 0, 0, err
		}
		if strings.ToLower(ent.Name) == target || strings.ToLower(ent.ShortName) == target {
			return lookupEntry{entry: ent, found: true}, ent.sector, ent.offset, nil
		}
	}
}

// splitParent separates a path into its parent directory path and the final
// component name, e.g. "a/b/c" -> ("a/b", "c"), "c" -> ("", "c").
func splitParent(path string) (parentPath, name string) {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
