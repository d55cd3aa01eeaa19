package main

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnv overlays environment variables onto the command's flags. Every flag can be set as
// prefix + the upper-snake flag name, so --client-batch-size becomes FED_CLIENT_BATCH_SIZE.
// A bound variable counts as an explicit flag, letting it take precedence over config-file
// values during the viper merge. Unparseable values are collected so one bad variable does not
// mask the rest.
func bindEnv(prefix string, cmd *cobra.Command) error {
	var errMsgs []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		envName := envVarName(prefix, flag.Name)
		value, ok := syscall.Getenv(envName)
		if !ok {
			return
		}
		if err := flag.Value.Set(value); err != nil {
			err = errors.Wrapf(err, "failed to parse %s (%s)", envName, flag.Value.Type())
			errMsgs = append(errMsgs, err.Error())
			return
		}
		flag.Changed = true
	})
	if len(errMsgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errMsgs, ";"))
}

func envVarName(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}
