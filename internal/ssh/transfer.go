// internal/ssh/transfer.go

package ssh

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	scp "github.com/bramvdbogaerde/go-scp"

	"fleetdeploy/internal/utils"
)

const remoteFileMode = "0644"

// uploadSCP creates the remote directory with mkdir -p and streams the file
// with the scp sink protocol.
func (s *Session) uploadSCP(ctx context.Context, localPath, remotePath string) error {
	dir := path.Dir(remotePath)
	if err := s.createRemoteDirectory(ctx, dir); err != nil {
		return err
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	client, err := scp.NewClientBySSH(s.client)
	if err != nil {
		return fmt.Errorf("failed to create scp client: %w", err)
	}
	defer client.Close()
	client.Timeout = s.config.transferTimeout

	s.config.log.V(1).Info("scp upload", "remote", remotePath)
	if err := client.CopyFromFile(ctx, *localFile, remotePath, remoteFileMode); err != nil {
		return fmt.Errorf("scp %s: %w", remotePath, err)
	}
	return nil
}

func (s *Session) createRemoteDirectory(ctx context.Context, dir string) error {
	status, out, err := s.Exec(ctx, "mkdir -p "+utils.ShellQuote(dir))
	if err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
	}
	if status != 0 {
		return fmt.Errorf("failed to create remote directory %s: exit status %d: %s",
			dir, status, strings.TrimSpace(string(out)))
	}
	return nil
}
