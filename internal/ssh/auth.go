package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"fleetdeploy/internal/deployerr"
	"fleetdeploy/internal/models"
	"fleetdeploy/internal/utils"
)

// authMethods turns credentials into SSH auth methods. Key files and agent
// keys share one publickey method because the client only tries each method
// name once. The returned release func closes the agent connection.
func authMethods(creds models.Credentials, agentSocket string) ([]ssh.AuthMethod, func(), error) {
	release := func() {}

	var fileSigners []ssh.Signer
	for _, p := range creds.IdentityFiles {
		signer, err := loadSigner(p, creds.Passphrase)
		if err != nil {
			return nil, release, fmt.Errorf("%w: identity file %s: %w", deployerr.ErrCredentials, p, err)
		}
		fileSigners = append(fileSigners, signer)
	}

	var agentClient agent.ExtendedAgent
	if creds.UseAgent && agentSocket != "" {
		if conn, err := net.Dial("unix", agentSocket); err == nil {
			agentClient = agent.NewClient(conn)
			release = func() { _ = conn.Close() }
		}
	}

	var methods []ssh.AuthMethod
	if len(fileSigners) > 0 || agentClient != nil {
		methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			signers := slices.Clone(fileSigners)
			if agentClient != nil {
				if agentSigners, err := agentClient.Signers(); err == nil {
					signers = append(signers, agentSigners...)
				}
			}
			return signers, nil
		}))
	}

	if creds.Password != "" {
		password := creds.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, release, ErrNoAuthMethods
	}
	return methods, release, nil
}

// loadSigner reads a private key, decrypting it with passphrase if needed.
func loadSigner(path, passphrase string) (ssh.Signer, error) {
	path, err := utils.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(b, []byte(passphrase))
	}
	s, err := ssh.ParsePrivateKey(b)
	if err == nil {
		return s, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, errors.New("private key is encrypted; set a passphrase")
	}
	return nil, err
}
