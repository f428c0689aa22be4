package utils

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ToRemotePath converts a local path to the forward-slash form used on the
// remote side.
func ToRemotePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// RemoteArtifactPath returns where a local artifact lands inside remoteDir.
func RemoteArtifactPath(remoteDir, localPath string) string {
	name := path.Base(ToRemotePath(localPath))
	return path.Join(ToRemotePath(remoteDir), name)
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
