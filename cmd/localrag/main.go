// Command localrag answers questions about local directories with a small
// on-device model. It speaks NDJSON over stdio, serves an HTTP API, or runs
// one-shot indexing and questions from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/localrag-agent/internal/config"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	httpapi "github.com/0xcro3dile/localrag-agent/internal/infrastructure/http"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/ndjson"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	envFile    string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "localrag",
	Short:         "Agentic question answering over local files",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		logx.Init(logx.LoggerOpts{Environment: cfg.Env, Level: cfg.LogLevel})
		metrics.Register()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Speak the NDJSON protocol over stdin and stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := ndjson.NewServer(a.ws, ndjson.WithShutdown(cancel))
		logx.Info().Msg("NDJSON server listening on stdio")
		return srv.Serve(ctx, os.Stdin, os.Stdout)
	},
}

var httpAddr string

var httpCmd = &cobra.Command{
	Use:   "http [dir...]",
	Short: "Serve the HTTP, SSE and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		if httpAddr != "" {
			cfg.HTTP.Addr = httpAddr
		}
		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, dir := range args {
			d, err := a.ws.Add(dir)
			if err != nil {
				return err
			}
			logx.Info().Str("directory", d.ID).Str("path", d.Path).Msg("directory added")
		}

		rpc := ndjson.NewServer(a.ws, ndjson.WithShutdown(cancel))
		return httpapi.NewServer(a.ws, rpc, cfg.HTTP).Start(ctx)
	},
}

var askDir string
var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask --dir <path> <question>",
	Short: "Index a directory and answer one question about it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.ws.Add(askDir)
		if err != nil {
			return err
		}
		opts := workspace.QueryOptions{DirectoryID: d.ID}
		if askVerbose {
			opts.OnStep = func(step entities.AgentStep) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d] %s %v\n", step.Index, step.Tool, step.Params)
			}
		}
		res, err := a.ws.Query(ctx, strings.Join(args, " "), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Text)
		if len(res.Sources) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for _, src := range res.Sources {
				fmt.Fprintf(out, "  %s\n", src)
			}
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a directory and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.ws.Add(args[0])
		if err != nil {
			return err
		}
		if err := d.Wait(ctx); err != nil {
			return err
		}
		printInfo(cmd, d.Info())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "localrag %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	httpCmd.Flags().StringVar(&httpAddr, "addr", "", "listen address (overrides config)")

	askCmd.Flags().StringVar(&askDir, "dir", "", "directory to ask about")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print agent steps to stderr")
	_ = askCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(serveCmd, httpCmd, askCmd, indexCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printInfo(cmd *cobra.Command, info workspace.Info) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", info.ID, info.Path)
	if info.Stats != nil {
		st := info.Stats
		fmt.Fprintf(out, "  %s files, %s total, %d directories\n",
			humanize.Comma(int64(st.FileCount)), humanize.IBytes(uint64(st.TotalSize)), st.Dirs.Count)

		types := make([]string, 0, len(st.Types))
		for ext := range st.Types {
			types = append(types, ext)
		}
		sort.Slice(types, func(i, j int) bool { return st.Types[types[i]] > st.Types[types[j]] })
		for _, ext := range types {
			fmt.Fprintf(out, "  %-8s %5d  %s\n", ext, st.Types[ext], humanize.IBytes(uint64(st.SizeByType[ext])))
		}
	}
	if info.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", info.Summary)
	}
}
