package system

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// fileMap serves ReadFile from memory.
type fileMap struct {
	core.RealFS
	files map[string]string
}

func (f *fileMap) ReadFile(name string) ([]byte, error) {
	if s, ok := f.files[name]; ok {
		return []byte(s), nil
	}
	return nil, os.ErrNotExist
}

func newContext(files map[string]string) (*core.SystemContext, *core.MockTransport) {
	mock := core.NewMockTransport()
	mock.FS = &fileMap{files: files}
	return core.NewSystemContext(false, mock, core.NewDefaultLogger(io.Discard, core.LevelInfo)), mock
}

func TestDetectDom0(t *testing.T) {
	ctx, mock := newContext(map[string]string{
		"/etc/qubes-release": "Qubes release 4.2.3 (R4.2)\n",
	})
	mock.OnExecute("hostname", "dom0\n", nil)

	info := Detect(ctx)
	assert.Equal(t, Info{Hostname: "dom0", Release: "4.2", IsDom0: true}, info)
	assert.Equal(t, "dom0", ctx.Hostname)
	assert.Equal(t, "4.2", ctx.Release)
	assert.True(t, ctx.IsDom0)
}

func TestDetectOSReleaseFallback(t *testing.T) {
	ctx, mock := newContext(map[string]string{
		"/etc/os-release": "NAME=Qubes\nID=qubes\nVERSION_ID=\"4.1\"\n",
	})
	mock.OnExecute("hostname", "dom0\n", nil)

	info := Detect(ctx)
	assert.True(t, info.IsDom0)
	assert.Equal(t, "4.1", info.Release)
}

func TestDetectNotQubes(t *testing.T) {
	ctx, mock := newContext(map[string]string{
		"/etc/os-release": "ID=fedora\nVERSION_ID=39\n",
	})
	mock.OnExit("hostname", 1, "")

	info := Detect(ctx)
	assert.False(t, info.IsDom0)
	assert.Empty(t, info.Release)
	assert.Empty(t, info.Hostname)
}

func TestParseRelease(t *testing.T) {
	tests := map[string]string{
		"Qubes release 4.2.3 (R4.2)": "4.2",
		"Qubes release 4.1.2":        "4.1.2",
		"something":                  "something",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseRelease(in), in)
	}
}
