package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var (
		showVersion bool
		configPath  string
	)

	root := &cobra.Command{
		Use:   "basedagent",
		Short: "Conversational onchain agent with per-user wallets and chat history",
		Long: strings.TrimSpace(`basedagent serves a chat endpoint backed by a tool-calling LLM agent.

Each user gets one custodial wallet, minted on first contact and kept forever,
and a rolling chat transcript that expires after a week of inactivity.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the JSON config file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newChatCommand(&configPath))
	root.AddCommand(newStatusCommand(&configPath))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket chat gateway",
		Long:  "Start the POST /chat endpoint, the /ws WebSocket endpoint and the health probes.",
		Example: strings.Join([]string{
			"  basedagent serve",
			"  basedagent serve --debug",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd(*configPath, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newChatCommand(configPath *string) *cobra.Command {
	var (
		user    string
		message string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent from the terminal",
		Long:  "Run an interactive session or send a one-shot message as the given user, using the same stores as the gateway.",
		Example: strings.Join([]string{
			"  basedagent chat --user 0xabc",
			"  basedagent chat --user 0xabc --message \"what's my balance?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatCmd(*configPath, user, message, debug)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (wallet address) to chat as")
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot prompt to send to the agent")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and store readiness",
		Example: "  basedagent status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(*configPath, cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  basedagent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
