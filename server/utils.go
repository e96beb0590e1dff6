// Generic data manipulation utilities.

package main

import (
	"strconv"
	"strings"
)

// parseVersion parses a version string in the form "a.b.c" or "a.b" into a
// packed int: ((major & 0xff) << 16) | ((minor & 0xff) << 8) | (patch & 0xff).
// Returns 0 if the string is invalid.
func parseVersion(vers string) int {
	var major, minor, patch int

	// Remove optional "v" prefix.
	vers = strings.TrimPrefix(vers, "v")

	dot := strings.Index(vers, ".")
	if dot >= 0 {
		major, _ = strconv.Atoi(vers[:dot])
		vers = vers[dot+1:]
	} else {
		major, _ = strconv.Atoi(vers)
		vers = ""
	}

	dot2 := strings.IndexFunc(vers, func(r rune) bool {
		return !('0' <= r && r <= '9')
	})
	if dot2 > 0 {
		minor, _ = strconv.Atoi(vers[:dot2])
		// Ignoring the possibility of a bad patch.
		patch, _ = strconv.Atoi(vers[dot2+1:])
	} else if len(vers) > 0 {
		minor, _ = strconv.Atoi(vers)
	}

	if major < 0 || minor < 0 || patch < 0 || minor >= 0xff || patch >= 0xff {
		return 0
	}

	return (major << 16) | (minor << 8) | patch
}

// versionToString converts a packed version back to a string. The patch
// level is included only when non-zero.
func versionToString(vers int) string {
	str := strconv.Itoa(vers>>16) + "." + strconv.Itoa((vers>>8)&0xff)
	if patch := vers & 0xff; patch > 0 {
		str += "." + strconv.Itoa(patch)
	}
	return str
}

// versionCompare compares two packed version numbers ignoring the patch
// level: negative if v1 < v2, zero if equal, positive if v1 > v2.
func versionCompare(v1, v2 int) int {
	return (v1 >> 8) - (v2 >> 8)
}
