package core

import "os"

// FileSystem is what qvmstate needs from the machine holding its state:
// the local disk, or the admin host over SFTP.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	// Rename replaces newpath if it exists.
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// RealFS is the local filesystem.
type RealFS struct{}

func (f *RealFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (f *RealFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}
func (f *RealFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (f *RealFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (f *RealFS) Remove(name string) error                     { return os.Remove(name) }
