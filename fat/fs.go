package fat

import (
	"path"
	"strings"

	"tinyfat/ferrors"
)

// Dir is an open directory handle, iterating combined LFN/8.3 entries.
type Dir struct {
	vol    *Volume
	cursor *dirCursor
	open   bool
}

// OpenDir resolves p to a directory and returns a handle positioned at its
// first entry.
func (v *Volume) OpenDir(p string) (*Dir, error) {
	if !v.mounted {
		return nil, ferrors.New(ferrors.NotMounted, "fat.OpenDir")
	}
	r, err := v.resolvePath(v.cwdCluster, p)
	if err != nil {
		return nil, err
	}
	if !r.entry.IsDir() {
		return nil, ferrors.New(ferrors.NotDir, "fat.OpenDir")
	}
	return &Dir{vol: v, cursor: newDirCursor(v, r.cluster), open: true}, nil
}

// ReadDir returns the next entry, or ferrors.Eof once the directory is
// exhausted.
func (d *Dir) ReadDir() (Entry, error) {
	if !d.open {
		return Entry{}, ferrors.New(ferrors.InvalidHandle, "fat.Dir.ReadDir")
	}
	return d.cursor.next()
}

// CloseDir invalidates the handle.
func (d *Dir) CloseDir() error {
	if !d.open {
		return ferrors.New(ferrors.InvalidHandle, "fat.Dir.CloseDir")
	}
	d.open = false
	return nil
}

// Chdir changes the volume's current directory.
func (v *Volume) Chdir(p string) error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Chdir")
	}
	r, err := v.resolvePath(v.cwdCluster, p)
	if err != nil {
		return err
	}
	if !r.entry.IsDir() {
		return ferrors.New(ferrors.NotDir, "fat.Chdir")
	}
	v.cwdCluster = r.cluster
	if strings.HasPrefix(p, "/") {
		v.cwdPath = path.Clean(p)
	} else {
		v.cwdPath = path.Clean(path.Join(v.cwdPath, p))
	}
	if v.cwdPath == "" {
		v.cwdPath = "/"
	}
	return nil
}

// Getcwd returns the volume's current directory path.
func (v *Volume) Getcwd() string { return v.cwdPath }
