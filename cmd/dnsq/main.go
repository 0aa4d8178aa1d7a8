// Command `dnsq` is the end-user CLI for asynchronous DNS resolution.
//
// Queries run directly against the configured upstream resolver; the
// `status` command talks to a running dnsqd daemon over its Unix
// socket instead.
//
// Usage:
//
//	dnsq resolve <type> <name>...  - Resolve records of one type for each name
//	dnsq lookup <name>             - Resolve a name to its first address
//	dnsq reverse <address>         - Reverse-resolve a literal IP address
//	dnsq status                    - Show daemon counters and uptime
//	dnsq version                   - Show version information
//
// Examples:
//
//	dnsq resolve A vertx.io
//	dnsq resolve MX vertx.io example.com
//	dnsq reverse 10.0.0.1
//	dnsq --server 8.8.8.8:53 resolve TXT vertx.io
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/lc/dnsq/internal/buildinfo"
	"github.com/lc/dnsq/internal/config"
	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/engine"
	"github.com/lc/dnsq/pkg/client"
)

func main() {
	cfg, err := config.New().Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	var (
		server      string
		timeout     time.Duration
		noRecursion bool
	)

	root := &cobra.Command{
		Use:   "dnsq",
		Short: "Asynchronous DNS resolution CLI",
		Long: `dnsq resolves DNS records against a configurable upstream server.
Record queries run directly over UDP; the status command talks to the
dnsqd daemon over its Unix socket.`,
	}
	root.PersistentFlags().StringVar(&server, "server", "", "upstream resolver as host:port (overrides config)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-query timeout (overrides config)")
	root.PersistentFlags().BoolVar(&noRecursion, "no-recursion", false, "clear the recursion desired flag on queries")

	// Fold flag overrides into the loaded config before any command runs.
	root.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if server != "" {
			host, port, err := splitServer(server)
			if err != nil {
				return err
			}
			cfg.Resolver.Host, cfg.Resolver.Port = host, port
		}
		if timeout > 0 {
			cfg.Resolver.QueryTimeout = timeout
		}
		if noRecursion {
			cfg.Resolver.DisableRecursion = true
		}
		return nil
	}

	// ---- version command ----
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show version information for the dnsq CLI and daemon.`,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", buildinfo.Version)
			fmt.Printf("commit: %s\n", buildinfo.Commit)
		},
	}

	// ---- resolve command ----
	resolveCmd := &cobra.Command{
		Use:   "resolve <type> <name>...",
		Short: "Resolve records of one type for each name",
		Long: `Resolve all records of the given type for one or more names.
Supported types: A, AAAA, CNAME, MX, TXT, NS, PTR, SRV.

Names are resolved concurrently; failures for individual names are
reported together after all queries finish.`,
		Example: "dnsq resolve MX vertx.io example.com",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rtype, names := args[0], args[1:]
			rc := cfg.Resolver

			type row struct {
				name    string
				answers []engine.Answer
			}

			var (
				mu   sync.Mutex
				rows []row
				errs error
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, name := range names {
				name := name
				g.Go(func() error {
					answers, err := resolveDirect(ctx, rc, func(ctx context.Context, eng *engine.Engine) ([]engine.Answer, error) {
						return eng.Resolve(ctx, rtype, name)
					})
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
						return nil
					}
					rows = append(rows, row{name: name, answers: answers})
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if len(rows) > 0 {
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Name", "Type", "Value", "Details"})
				table.SetHeaderColor(
					tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
					tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
					tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
					tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
				)
				table.SetBorder(false)
				table.SetColumnColor(
					tablewriter.Colors{tablewriter.FgHiWhiteColor},
					tablewriter.Colors{tablewriter.FgYellowColor},
					tablewriter.Colors{tablewriter.FgGreenColor},
					tablewriter.Colors{tablewriter.FgHiWhiteColor},
				)
				for _, r := range rows {
					if len(r.answers) == 0 {
						table.Append([]string{r.name, rtype, "-", "no records"})
						continue
					}
					for _, a := range r.answers {
						table.Append([]string{r.name, a.Type, a.Value, details(a)})
					}
				}
				table.Render()
			}

			return errs
		},
	}

	// ---- lookup command ----
	lookupCmd := &cobra.Command{
		Use:     "lookup <name>",
		Short:   "Resolve a name to its first address",
		Long:    `Resolve a name to its first address, preferring IPv4 over IPv6.`,
		Example: "dnsq lookup vertx.io",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			answers, err := resolveDirect(cmd.Context(), cfg.Resolver, func(ctx context.Context, eng *engine.Engine) ([]engine.Answer, error) {
				addr, err := eng.Lookup(ctx, name)
				if err != nil {
					return nil, err
				}
				return []engine.Answer{{Value: addr}}, nil
			})
			if err != nil {
				return err
			}
			fmt.Println(answers[0].Value)
			return nil
		},
	}

	// ---- reverse command ----
	reverseCmd := &cobra.Command{
		Use:     "reverse <address>",
		Short:   "Reverse-resolve a literal IP address",
		Long:    `Resolve a literal IPv4 or IPv6 address to its PTR name.`,
		Example: "dnsq reverse 10.0.0.1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			answers, err := resolveDirect(cmd.Context(), cfg.Resolver, func(ctx context.Context, eng *engine.Engine) ([]engine.Answer, error) {
				name, err := eng.Reverse(ctx, address)
				if err != nil {
					return nil, err
				}
				return []engine.Answer{{Value: name}}, nil
			})
			if err != nil {
				return err
			}
			fmt.Println(answers[0].Value)
			return nil
		},
	}

	// ---- status command ----
	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "Show daemon counters and uptime",
		Long:    `Show in-flight and served query counters for the running dnsqd daemon.`,
		Example: "dnsq status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()

			cli := client.New(cfg.Socket.Path)
			status, err := cli.Status(ctx)
			if err != nil {
				return err
			}

			color.New(color.Bold).Println("DAEMON STATUS:")
			fmt.Printf("  version:   %s (%s)\n", status.Version, status.Commit)
			fmt.Printf("  uptime:    %s\n", status.Uptime.Round(time.Second))
			fmt.Printf("  in flight: %d\n", status.InFlight)
			fmt.Printf("  served:    %d\n", status.Served)
			return nil
		},
	}

	root.AddCommand(resolveCmd, lookupCmd, reverseCmd, statusCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveDirect runs one query against a throwaway client. The client
// is single-owner, so each concurrent worker gets its own.
func resolveDirect(ctx context.Context, rc config.ResolverConfig, fn func(context.Context, *engine.Engine) ([]engine.Answer, error)) ([]engine.Answer, error) {
	c, err := dnsclient.New(rc.Addr(),
		dnsclient.WithQueryTimeout(rc.QueryTimeout),
		dnsclient.WithRecursionDesired(!rc.DisableRecursion),
	)
	if err != nil {
		return nil, err
	}

	eng := engine.New(c)
	eng.Run(ctx)
	defer eng.Close()

	queryCtx, cancel := context.WithTimeout(ctx, rc.QueryTimeout+time.Second)
	defer cancel()

	return fn(queryCtx, eng)
}

// details renders the numeric record fields MX and SRV carry.
func details(a engine.Answer) string {
	switch a.Type {
	case "MX":
		return fmt.Sprintf("preference=%d", a.Preference)
	case "SRV":
		return fmt.Sprintf("priority=%d weight=%d port=%d", a.Priority, a.Weight, a.Port)
	default:
		return ""
	}
}

// splitServer parses a "host:port" flag value.
func splitServer(s string) (string, int, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server %q: %w", s, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server port %q: %w", port, err)
	}
	return host, p, nil
}
