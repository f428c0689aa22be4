package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fleetdeploy/internal/config"
	"fleetdeploy/internal/crypto"
)

func newSealCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a password or passphrase for the inventory",
		Long: `seal reads a secret from the terminal (or stdin when it is not a terminal)
and prints it encrypted with the master key from ` + config.EnvPrefix + `_MASTER_KEY.
Paste the output as a host's password or passphrase in the inventory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			cipher, err := crypto.NewCipher(s.MasterKey)
			if err != nil {
				return usageError(fmt.Errorf("%w: set %s_MASTER_KEY", err, config.EnvPrefix))
			}

			secret, err := a.readSecret()
			if err != nil {
				return err
			}
			if secret == "" {
				return usageError(errors.New("empty secret"))
			}

			sealed, err := cipher.Seal(secret)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return err
		},
	}
}

func (a *app) readSecret() (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, "Secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
