// Package artifact reads and writes the files exchanged between pipeline
// stages.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	secretPermission = 0600
	publicPermission = 0644
	dirPermission    = 0700
)

// ErrMalformed means a file exists but cannot be decoded.
var ErrMalformed = errors.New("artifact: malformed file")

// SharePath returns the conventional name of party i's share of base.
func SharePath(base string, i int) string {
	return fmt.Sprintf("%s.%d.shared", base, i)
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return true, err
}

// WriteSecret writes data readable by the owner only. The file is replaced
// atomically.
func WriteSecret(path string, data []byte) error {
	return write(path, data, secretPermission)
}

// WritePublic writes data readable by everyone. The file is replaced
// atomically.
func WritePublic(path string, data []byte) error {
	return write(path, data, publicPermission)
}

func write(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read reads an opaque artifact such as a CRS or a verifying key.
func Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ReadProof reads a proof file as is.
func ReadProof(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteProof writes a proof file as is.
func WriteProof(path string, proof []byte) error {
	return WritePublic(path, proof)
}
