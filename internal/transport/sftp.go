package transport

import (
	"io"
	"os"

	"github.com/pkg/sftp"
)

// SFTPFS implements core.FileSystem over an SFTP connection to the admin
// host.
type SFTPFS struct {
	client *sftp.Client
}

func NewSFTPFS(client *sftp.Client) *SFTPFS {
	return &SFTPFS{client: client}
}

func (fs *SFTPFS) ReadFile(filename string) ([]byte, error) {
	f, err := fs.client.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (fs *SFTPFS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	f, err := fs.client.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.client.Chmod(filename, perm)
}

// MkdirAll ignores perm; the server's umask applies.
func (fs *SFTPFS) MkdirAll(path string, _ os.FileMode) error {
	return fs.client.MkdirAll(path)
}

// Rename uses the posix-rename extension so an existing target is
// replaced, as os.Rename does.
func (fs *SFTPFS) Rename(oldpath, newpath string) error {
	return fs.client.PosixRename(oldpath, newpath)
}

func (fs *SFTPFS) Remove(name string) error {
	return fs.client.Remove(name)
}

// brokenFS is returned when the SFTP subsystem could not be opened.
type brokenFS struct {
	err error
}

func (b *brokenFS) ReadFile(string) ([]byte, error)             { return nil, b.err }
func (b *brokenFS) WriteFile(string, []byte, os.FileMode) error { return b.err }
func (b *brokenFS) MkdirAll(string, os.FileMode) error          { return b.err }
func (b *brokenFS) Rename(string, string) error                 { return b.err }
func (b *brokenFS) Remove(string) error                         { return b.err }
