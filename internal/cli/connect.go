package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/handshake"
)

type connectOptions struct {
	addr     string
	name     string
	role     string
	password string
	salt     string
	version  string
	timeout  time.Duration
	hold     bool
}

func newConnectCmd() *cobra.Command {
	opts := connectOptions{
		addr:    getEnvOrDefault("TABLETOP_ADDR", "localhost:51234"),
		version: "DEVELOPMENT",
		timeout: 10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a table with the encrypted handshake",
		Long: `Join a table. The request is sealed under the role secret or the
player's personal password; the server decides which one opens it.

Personal passwords must be sealed under the salt reported by "players add"
(pass it with --salt). Role secrets accept any salt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", opts.addr, "Table address (env: TABLETOP_ADDR)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Player name")
	cmd.Flags().StringVar(&opts.role, "role", "PLAYER", "Expected role: PLAYER or GM")
	cmd.Flags().StringVar(&opts.password, "password", "", "Role secret or personal password")
	cmd.Flags().StringVar(&opts.salt, "salt", "", "Base64 salt of a personal password")
	cmd.Flags().StringVar(&opts.version, "client-version", opts.version, "Client version to announce")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Handshake timeout")
	cmd.Flags().BoolVar(&opts.hold, "hold", false, "Stay connected until interrupted")

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runConnect(cmd *cobra.Command, opts connectOptions) error {
	role, err := model.ParseRole(opts.role)
	if err != nil {
		return err
	}
	salt, err := decodeSalt(opts.salt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := handshake.Send(ctx, conn, handshake.Request{
		Name:    opts.name,
		Role:    role,
		Version: opts.version,
		Secret:  opts.password,
		Salt:    salt,
	})
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	out := NewOutput(cfg.Output, cmd.OutOrStdout())
	result := ConnectResult{
		Admitted: resp.OK(),
		Code:     resp.Code.String(),
		Message:  resp.Message,
	}
	if cfg.Verbose {
		result.Policy = resp.Policy
	}
	out.Print(result)

	if !resp.OK() {
		return fmt.Errorf("refused: %s", resp.Message)
	}
	if opts.hold {
		return hold(cmd.Context(), conn)
	}
	return nil
}

// hold keeps conn open until the server closes it or the user interrupts
func hold(ctx context.Context, conn net.Conn) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-closed:
	}
	return nil
}

// decodeSalt accepts padded or unpadded standard base64
func decodeSalt(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	salt, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid --salt: %w", err)
	}
	return salt, nil
}
