// internal/ssh/ssh_transfer.go

package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
)

// uploadSFTP copies the file over the sftp subsystem. The remote file is
// truncated first, so repeated uploads of the same artifact converge.
func (s *Session) uploadSFTP(ctx context.Context, localPath, remotePath string) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	dir := path.Dir(remotePath)
	if err := client.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := io.Copy(dstFile, srcFile)
	if err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error writing remote file: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to close remote file: %w", err)
	}
	if err := client.Chmod(remotePath, 0o644); err != nil {
		s.config.log.V(1).Info("chmod failed", "remote", remotePath, "error", err.Error())
	}

	s.config.log.V(1).Info("sftp upload", "remote", remotePath, "bytes", written)
	return nil
}
