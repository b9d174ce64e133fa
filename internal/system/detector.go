package system

import (
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/consts"
	"github.com/melih-ucgun/qvmstate/internal/core"
)

// Info is what Detect learns about the admin domain.
type Info struct {
	Hostname string
	Release  string
	IsDom0   bool
}

// Detect, hedef sistemi (lokal veya SSH üzerinden dom0) analiz eder ve
// SystemContext alanlarını doldurur. Errors are not fatal: a host that
// cannot be identified is simply reported as not being dom0.
func Detect(ctx *core.SystemContext) Info {
	var info Info

	if ctx.Transport != nil {
		if out, err := ctx.Transport.Execute(ctx, "hostname"); err == nil {
			info.Hostname = strings.TrimSpace(out)
		} else {
			ctx.Logger.Debug("hostname could not be read", "error", err)
		}
	}

	if ctx.FS != nil {
		if data, err := ctx.FS.ReadFile(consts.QubesReleaseFile); err == nil {
			info.Release = parseRelease(string(data))
			info.IsDom0 = true
		}
		// qubes-release olmayan sistemlerde os-release'e bak
		if !info.IsDom0 {
			if data, err := ctx.FS.ReadFile("/etc/os-release"); err == nil {
				osr := parseOSRelease(string(data))
				if osr["ID"] == "qubes" {
					info.IsDom0 = true
					info.Release = osr["VERSION_ID"]
				}
			}
		}
	}

	ctx.Hostname = info.Hostname
	ctx.Release = info.Release
	ctx.IsDom0 = info.IsDom0
	return info
}

// parseRelease extracts "4.2" from "Qubes release 4.2.3 (R4.2)".
func parseRelease(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "(R"); i >= 0 {
		if j := strings.Index(s[i:], ")"); j > 2 {
			return s[i+2 : i+j]
		}
	}
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == "release" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return s
}

func parseOSRelease(s string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			// Tırnak işaretlerini temizle
			info[parts[0]] = strings.Trim(strings.TrimSpace(parts[1]), "\"")
		}
	}
	return info
}
