package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of a set of paths.
type Usage struct {
	Bytes int64 `json:"bytes"`
	Files int   `json:"files"`
}

// DiskUsage sums the size of regular files under paths. Each path may be a
// file or a directory. Missing paths contribute nothing.
func DiskUsage(paths ...string) (Usage, error) {
	var u Usage
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			u.Bytes += info.Size()
			u.Files++
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return Usage{}, err
		}
	}
	return u, nil
}
