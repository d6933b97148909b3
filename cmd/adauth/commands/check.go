package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/netresearch/adbind"
)

type checkOptions struct {
	*rootOptions
	passwordStdin bool
	showMetrics   bool
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	opts := &checkOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "check USERNAME",
		Short: "Authenticate a user and print the granted roles",
		Long: `Authenticate USERNAME against the directory, resolve its roles and apply
the configured identity remapping.

The password is prompted for without echo, or read from the first line of
standard input with --password-stdin.`,
		Example: `  adauth check jdoe
  echo "$PASSWORD" | adauth check jdoe --password-stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from standard input")
	cmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "print the collected metrics in Prometheus text format")
	return cmd
}

func (o *checkOptions) run(cmd *cobra.Command, username string) error {
	rt, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	password, err := readPassword(cmd, o.passwordStdin)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	registry := prometheus.NewRegistry()
	providerOpts := []adbind.Option{
		adbind.WithLogger(rt.logger),
		adbind.WithMetrics(adbind.NewMetrics(registry)),
	}
	if o.dialer != nil {
		providerOpts = append(providerOpts, adbind.WithDialer(o.dialer))
	}

	var store adbind.UserDetailsService
	if rt.store != nil {
		store = rt.store
	}
	provider, err := adbind.NewProvider(&rt.cfg.Directory, store, providerOpts...)
	if err != nil {
		return err
	}

	auth, authErr := provider.Authenticate(cmd.Context(), username, password)
	if o.showMetrics {
		defer func() { _ = writeMetrics(cmd.OutOrStdout(), registry) }()
	}
	if authErr != nil {
		return authErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dn:        %s\n", auth.Principal.DN())
	fmt.Fprintf(out, "principal: %s\n", auth.Principal.PrincipalName())
	fmt.Fprintf(out, "username:  %s\n", auth.Username)
	if accountType, ok := auth.Principal.AccountType(); ok {
		fmt.Fprintf(out, "type:      %s\n", accountType)
	}
	fmt.Fprintf(out, "enabled:   %t\n", auth.Enabled)
	fmt.Fprintf(out, "remapped:  %t\n", auth.Remapped())
	fmt.Fprintf(out, "roles:     %s\n", strings.Join(auth.Roles.Strings(), " "))
	return nil
}

// readPassword reads one line from standard input, prompting without echo
// when it is a terminal.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
