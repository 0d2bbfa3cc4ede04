// Command tbc-admin is a signed remote client for the gateway's admin
// control plane, plus a local keygen utility. Its command surface
// mirrors the reference CLI's remote subcommands exactly.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbcnet/gateway/internal/admin"
)

func main() {
	var endpoint, keyHex string

	root := &cobra.Command{Use: "tbc-admin", Short: "signed remote client for the TBC admin control plane"}
	root.PersistentFlags().StringVar(&endpoint, "endpoint", "http://localhost:8080/admin/exec", "admin exec endpoint")
	root.PersistentFlags().StringVar(&keyHex, "key", "", "hex-encoded Ed25519 private key (64 bytes)")

	root.AddCommand(
		keygenCmd(),
		remoteCmd("ping", nil, &endpoint, &keyHex),
		remoteCmd("health", nil, &endpoint, &keyHex),
		remoteCmd("config", nil, &endpoint, &keyHex),
		remoteCmd("stats", nil, &endpoint, &keyHex),
		logsCmd(&endpoint, &keyHex),
		remoteCmd("connections", nil, &endpoint, &keyHex),
		remoteCmd("layers", nil, &endpoint, &keyHex),
		remoteCmd("admins", nil, &endpoint, &keyHex),
		addAdminCmd(&endpoint, &keyHex),
		removeAdminCmd(&endpoint, &keyHex),
		clearNullifierCacheCmd(&endpoint, &keyHex),
		shutdownCmd(&endpoint, &keyHex),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a local Ed25519 admin keypair (no network call)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(nil)
			if err != nil {
				return err
			}
			fmt.Printf("public_key:  %s\n", hex.EncodeToString(pub))
			fmt.Printf("private_key: %s\n", hex.EncodeToString(priv))
			return nil
		},
	}
}

func remoteCmd(name string, args any, endpoint, keyHex *string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "send the " + name + " admin command",
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return execRemote(*endpoint, *keyHex, commandName(name), args)
		},
	}
}

// commandName maps the CLI's human subcommand name onto the wire
// command tag the control plane recognizes.
func commandName(cliName string) string {
	switch cliName {
	case "config":
		return admin.CmdGetConfig
	case "health":
		return admin.CmdHealth
	case "stats":
		return admin.CmdGetStats
	case "connections":
		return admin.CmdListConnections
	case "layers":
		return admin.CmdGetLayerStatus
	case "admins":
		return admin.CmdListAdmins
	default:
		return cliName
	}
}

func logsCmd(endpoint, keyHex *string) *cobra.Command {
	var lines int
	var level string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "fetch recent gateway logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRemote(*endpoint, *keyHex, admin.CmdGetLogs, map[string]any{"lines": lines, "level": level})
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of log lines to fetch")
	cmd.Flags().StringVar(&level, "level", "", "minimum log level to include")
	return cmd
}

func addAdminCmd(endpoint, keyHex *string) *cobra.Command {
	var name, pubkey, role string
	cmd := &cobra.Command{
		Use:   "add-admin",
		Short: "register a new admin on the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRemote(*endpoint, *keyHex, admin.CmdAddAdmin, map[string]any{"name": name, "pubkey": pubkey, "role": role})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "admin display name")
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "hex-encoded Ed25519 public key")
	cmd.Flags().StringVar(&role, "role", "monitor", "role: super, operator, or monitor")
	return cmd
}

func removeAdminCmd(endpoint, keyHex *string) *cobra.Command {
	var pubkey string
	cmd := &cobra.Command{
		Use:   "remove-admin",
		Short: "remove an admin from the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRemote(*endpoint, *keyHex, admin.CmdRemoveAdmin, map[string]any{"pubkey": pubkey})
		},
	}
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "hex-encoded Ed25519 public key")
	return cmd
}

func clearNullifierCacheCmd(endpoint, keyHex *string) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear-nullifier-cache",
		Short: "clear the consumed-nullifier cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRemote(*endpoint, *keyHex, admin.CmdClearNullifierCache, map[string]any{"confirm": confirm})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required to actually clear the cache")
	return cmd
}

func shutdownCmd(endpoint, keyHex *string) *cobra.Command {
	var delay int
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "schedule gateway shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execRemote(*endpoint, *keyHex, admin.CmdShutdown, map[string]any{"delay_secs": delay})
		},
	}
	cmd.Flags().IntVar(&delay, "delay", 0, "seconds to wait before terminating")
	return cmd
}

// execRemote signs the canonical payload locally, POSTs the signed
// request, and prints the result body.
func execRemote(endpoint, keyHex, command string, args any) error {
	if keyHex == "" {
		return fmt.Errorf("tbc-admin: --key is required")
	}
	priv, err := hex.DecodeString(keyHex)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("tbc-admin: --key must be a 64-byte hex Ed25519 private key")
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	req := &admin.SignedRequest{
		PublicKey: hex.EncodeToString(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)),
		Timestamp: time.Now().Unix(),
		Command:   command,
		Args:      argsJSON,
	}
	req.Signature = admin.Sign(priv, req)

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tbc-admin: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(respBody))
	return nil
}
