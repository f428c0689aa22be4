package deploy

import (
	"path"
	"strings"

	"fleetdeploy/internal/utils"
)

const (
	DefaultRemoteDir       = "/tmp"
	DefaultActivateCommand = "tar -xzf {artifact} -C {dir}"
)

// ActivationCommand expands the {artifact}, {dir} and {name} placeholders of
// tmpl for an artifact uploaded to remotePath. Values are shell-quoted.
func ActivationCommand(tmpl, remotePath string) string {
	return strings.NewReplacer(
		"{artifact}", utils.ShellQuote(remotePath),
		"{dir}", utils.ShellQuote(path.Dir(remotePath)),
		"{name}", utils.ShellQuote(path.Base(remotePath)),
	).Replace(tmpl)
}
